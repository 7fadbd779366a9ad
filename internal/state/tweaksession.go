package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mymmrac/telego"
)

// SessionKey builds the tweak session key for a generation and account.
// Sessions are per user per generation, so two users tweaking the same
// card never share state.
func SessionKey(generationID, masterAccountID string) string {
	return generationID + "_" + masterAccountID
}

// TweakSession is one user's editable parameter draft for one generation.
// The draft starts as a clone of the ancestor's request payload and is
// mutated through the tweak menu until applied or discarded.
type TweakSession struct {
	GenerationID    string
	MasterAccountID string
	ToolID          string
	ToolDisplayName string
	Draft           map[string]any
	Dirty           bool

	// Menu bookkeeping. IsNewMenu marks a standalone menu message that
	// should be deleted on apply; otherwise OrigKeyboard is restored over
	// the delivery card.
	MenuChatID    int64
	MenuMessageID int
	IsNewMenu     bool
	OrigKeyboard  *telego.InlineKeyboardMarkup

	CreatedAt time.Time
	UpdatedAt time.Time
}

// clone returns a copy safe to hand out while the store keeps mutating the
// original. Draft values are shallow-copied; they are treated as immutable
// once written.
func (s *TweakSession) clone() *TweakSession {
	cp := *s
	cp.Draft = make(map[string]any, len(s.Draft))
	for k, v := range s.Draft {
		cp.Draft[k] = v
	}
	return &cp
}

// TweakSessionStore keeps tweak sessions with inactivity-based expiry.
// Expired sessions are dropped lazily on access and by the periodic sweep.
type TweakSessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*TweakSession
	onEvict  func(key string)
}

// NewTweakSessionStore builds a store whose sessions expire after ttl of
// inactivity. onEvict, when set, runs for every removed key and is used to
// release the session's callback token.
func NewTweakSessionStore(ttl time.Duration, onEvict func(key string)) *TweakSessionStore {
	return &TweakSessionStore{
		ttl:      ttl,
		sessions: make(map[string]*TweakSession),
		onEvict:  onEvict,
	}
}

// Put stores a session under its generation and account key.
func (s *TweakSessionStore) Put(sess *TweakSession) {
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	key := SessionKey(sess.GenerationID, sess.MasterAccountID)
	s.mu.Lock()
	s.sessions[key] = sess.clone()
	s.mu.Unlock()
}

// Get returns a copy of the session for key. A session past its TTL is
// removed and reported as missing, which is how expiry surfaces to the
// menu handlers.
func (s *TweakSessionStore) Get(key string) (*TweakSession, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[key]
	if ok && time.Since(sess.UpdatedAt) > s.ttl {
		delete(s.sessions, key)
		s.mu.Unlock()
		s.evict(key)
		slog.Debug("tweak session expired", "key", key)
		return nil, false
	}
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	cp := sess.clone()
	s.mu.Unlock()
	return cp, true
}

// SetParam writes one draft value, marks the session dirty, and refreshes
// its expiry clock.
func (s *TweakSessionStore) SetParam(key, param string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return false
	}
	sess.Draft[param] = value
	sess.Dirty = true
	sess.UpdatedAt = time.Now()
	return true
}

// SetMenu updates the menu placement bookkeeping of a session.
func (s *TweakSessionStore) SetMenu(key string, chatID int64, messageID int, isNew bool, orig *telego.InlineKeyboardMarkup) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return false
	}
	sess.MenuChatID = chatID
	sess.MenuMessageID = messageID
	sess.IsNewMenu = isNew
	sess.OrigKeyboard = orig
	sess.UpdatedAt = time.Now()
	return true
}

// Delete removes a session, releasing its token via onEvict.
func (s *TweakSessionStore) Delete(key string) {
	s.mu.Lock()
	_, ok := s.sessions[key]
	delete(s.sessions, key)
	s.mu.Unlock()
	if ok {
		s.evict(key)
	}
}

// Len reports the number of live sessions.
func (s *TweakSessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes every expired session and returns how many were dropped.
func (s *TweakSessionStore) Sweep() int {
	now := time.Now()
	s.mu.Lock()
	var expired []string
	for key, sess := range s.sessions {
		if now.Sub(sess.UpdatedAt) > s.ttl {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		delete(s.sessions, key)
	}
	s.mu.Unlock()
	for _, key := range expired {
		s.evict(key)
	}
	if len(expired) > 0 {
		slog.Debug("tweak sessions swept", "expired", len(expired))
	}
	return len(expired)
}

func (s *TweakSessionStore) evict(key string) {
	if s.onEvict != nil {
		s.onEvict(key)
	}
}
