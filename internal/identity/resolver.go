// Package identity resolves Telegram users to master account ids through
// the data service's find-or-create endpoint, with an in-process cache in
// front of it.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/musebot/internal/dataapi"
)

// Platform is the platform tag this bot registers identities under.
const Platform = "telegram"

// cacheSize bounds the identity cache. Entries are tiny; the bound exists
// to keep memory flat on busy public bots.
const cacheSize = 4096

// Source is the slice of the data API the resolver needs.
type Source interface {
	FindOrCreateUser(ctx context.Context, platform, platformID string, pc *dataapi.PlatformContext) (*dataapi.ResolveResult, error)
	LogEvent(ctx context.Context, ev dataapi.Event) error
}

// Resolver maps Telegram user ids to master account ids. Cache hits skip
// the data service entirely, so the hot dispatch path stays local.
type Resolver struct {
	source Source
	cache  *lru.Cache[int64, string]
}

// NewResolver builds a resolver over the data API.
func NewResolver(source Source) *Resolver {
	cache, _ := lru.New[int64, string](cacheSize)
	return &Resolver{source: source, cache: cache}
}

// Resolve returns the master account id for a Telegram user, creating the
// account on first contact.
func (r *Resolver) Resolve(ctx context.Context, user *telego.User, chatID int64, messageID int) (string, error) {
	if user == nil {
		return "", fmt.Errorf("resolve identity: no user on update")
	}
	if maid, ok := r.cache.Get(user.ID); ok {
		return maid, nil
	}

	pc := &dataapi.PlatformContext{
		Platform:  Platform,
		UserID:    user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		ChatID:    chatID,
		MessageID: messageID,
	}
	res, err := r.source.FindOrCreateUser(ctx, Platform, strconv.FormatInt(user.ID, 10), pc)
	if err != nil {
		return "", fmt.Errorf("resolve identity: %w", err)
	}
	if res.MasterAccountID == "" {
		return "", fmt.Errorf("resolve identity: empty master account id for user %d", user.ID)
	}

	r.cache.Add(user.ID, res.MasterAccountID)
	if res.IsNewUser {
		slog.Info("new user registered",
			"user_id", user.ID,
			"username", user.Username,
			"master_account_id", res.MasterAccountID)
	}

	// A cache miss marks the start of a session; the event is advisory and
	// never blocks dispatch.
	if err := r.source.LogEvent(ctx, dataapi.Event{
		Type:            "session_started",
		MasterAccountID: res.MasterAccountID,
		SourcePlatform:  Platform,
		Payload:         map[string]any{"userId": user.ID, "isNewUser": res.IsNewUser},
	}); err != nil {
		slog.Warn("session event failed", "error", err)
	}
	return res.MasterAccountID, nil
}

// Forget drops a cached mapping. Used when the data service reports the
// account gone.
func (r *Resolver) Forget(userID int64) {
	r.cache.Remove(userID)
}
