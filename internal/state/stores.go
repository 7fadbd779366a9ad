package state

import (
	"context"
	"time"
)

// sweepInterval bounds how long an expired tweak session can linger before
// the background sweep reclaims it.
const sweepInterval = time.Minute

// Stores bundles the bot's volatile state.
type Stores struct {
	Replies *ReplyContextStore
	Tweaks  *TweakSessionStore
	Tokens  *TokenMap
}

// New builds the store set. Tweak session eviction releases the session's
// callback token so tokens never outlive their sessions.
func New(replyTTL, tweakTTL time.Duration) *Stores {
	tokens := NewTokenMap()
	return &Stores{
		Replies: NewReplyContextStore(replyTTL),
		Tweaks:  NewTweakSessionStore(tweakTTL, tokens.Release),
		Tokens:  tokens,
	}
}

// Run sweeps expired tweak sessions until ctx is done. Reply contexts
// expire on their own timers and need no sweep.
func (s *Stores) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tweaks.Sweep()
		}
	}
}
