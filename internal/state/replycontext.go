// Package state holds the bot's volatile interaction state: reply contexts
// keyed by prompt message, tweak sessions keyed by generation and account,
// and the short tokens that stand in for session keys inside callback data.
// Everything here is in-memory and TTL-bound; durable state lives behind
// the data API.
package state

import (
	"log/slog"
	"sync"
	"time"
)

// ReplyKind discriminates the stored reply context variants.
type ReplyKind string

const (
	KindSettingsParamEdit ReplyKind = "settings_param_edit"
	KindTweakParamEdit    ReplyKind = "tweak_param_edit"
	KindLoraImportURL     ReplyKind = "lora_import_url"
	KindCollectionName    ReplyKind = "collection_name"
	KindCollectionRename  ReplyKind = "collection_rename"
	KindTrainingName      ReplyKind = "training_name"
)

// ReplyContext is the state attached to a prompt message. When a user
// replies to that message, the dispatcher consumes the context and routes
// the reply to the handler registered for its kind.
type ReplyContext interface {
	Kind() ReplyKind
}

// SettingsParamEdit awaits a new preference value for one tool parameter.
type SettingsParamEdit struct {
	MasterAccountID string
	ToolName        string
	Param           string
	MenuChatID      int64
	MenuMessageID   int
}

func (SettingsParamEdit) Kind() ReplyKind { return KindSettingsParamEdit }

// TweakParamEdit awaits a new draft value for one tweak session parameter.
type TweakParamEdit struct {
	MasterAccountID string
	SessionKey      string
	GenerationID    string
	Param           string
}

func (TweakParamEdit) Kind() ReplyKind { return KindTweakParamEdit }

// LoraImportURL awaits a LoRA URL to submit for import review.
type LoraImportURL struct {
	MasterAccountID string
}

func (LoraImportURL) Kind() ReplyKind { return KindLoraImportURL }

// CollectionName awaits a name for a new collection.
type CollectionName struct {
	MasterAccountID string
	MenuChatID      int64
	MenuMessageID   int
}

func (CollectionName) Kind() ReplyKind { return KindCollectionName }

// CollectionRename awaits a new name for an existing collection.
type CollectionRename struct {
	MasterAccountID string
	CollectionID    string
	MenuChatID      int64
	MenuMessageID   int
}

func (CollectionRename) Kind() ReplyKind { return KindCollectionRename }

// TrainingName awaits a name for a new training job.
type TrainingName struct {
	MasterAccountID string
	MenuChatID      int64
	MenuMessageID   int
}

func (TrainingName) Kind() ReplyKind { return KindTrainingName }

// MessageRef addresses one message in one chat.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

type replyEntry struct {
	ctx   ReplyContext
	timer *time.Timer
}

// ReplyContextStore maps prompt messages to pending reply contexts. Each
// entry expires independently after the store TTL; consuming an entry
// removes it, so every stored context is used at most once.
type ReplyContextStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[MessageRef]*replyEntry
}

// NewReplyContextStore builds a store whose entries expire after ttl.
func NewReplyContextStore(ttl time.Duration) *ReplyContextStore {
	return &ReplyContextStore{
		ttl:     ttl,
		entries: make(map[MessageRef]*replyEntry),
	}
}

// Put registers a context for the given prompt message, replacing any
// previous one and restarting its expiry clock.
func (s *ReplyContextStore) Put(ref MessageRef, ctx ReplyContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[ref]; ok {
		old.timer.Stop()
	}
	entry := &replyEntry{ctx: ctx}
	entry.timer = time.AfterFunc(s.ttl, func() { s.expire(ref) })
	s.entries[ref] = entry
}

// Consume removes and returns the context for a prompt message.
func (s *ReplyContextStore) Consume(ref MessageRef) (ReplyContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[ref]
	if !ok {
		return nil, false
	}
	entry.timer.Stop()
	delete(s.entries, ref)
	return entry.ctx, true
}

// Len reports the number of pending contexts.
func (s *ReplyContextStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *ReplyContextStore) expire(ref MessageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[ref]
	if !ok {
		return
	}
	delete(s.entries, ref)
	slog.Debug("reply context expired",
		"chat_id", ref.ChatID,
		"message_id", ref.MessageID,
		"kind", entry.ctx.Kind())
}
