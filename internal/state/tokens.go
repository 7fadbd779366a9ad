package state

import (
	"crypto/rand"
	"sync"
)

// tokenLen keeps callback data short: "tpe_" + token + "_" + param must
// stay inside Telegram's 64-byte callback data limit for every parameter
// name a tool schema can carry.
const tokenLen = 8

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// TokenMap assigns short opaque tokens to tweak session keys so that
// callback data never has to carry a full generation id and account id
// pair. Mappings are bidirectional and stable for the session lifetime.
type TokenMap struct {
	mu      sync.Mutex
	byKey   map[string]string
	byToken map[string]string
}

// NewTokenMap builds an empty token map.
func NewTokenMap() *TokenMap {
	return &TokenMap{
		byKey:   make(map[string]string),
		byToken: make(map[string]string),
	}
}

// Acquire returns the token for a session key, minting one on first use.
func (m *TokenMap) Acquire(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok, ok := m.byKey[key]; ok {
		return tok
	}
	tok := m.mint()
	m.byKey[key] = tok
	m.byToken[tok] = key
	return tok
}

// SessionKey resolves a token back to its session key. A miss means the
// session was destroyed or never existed.
func (m *TokenMap) SessionKey(token string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.byToken[token]
	return key, ok
}

// Release drops the mapping for a session key.
func (m *TokenMap) Release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok, ok := m.byKey[key]; ok {
		delete(m.byKey, key)
		delete(m.byToken, tok)
	}
}

// Len reports the number of live mappings.
func (m *TokenMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}

// mint generates a fresh token not currently in use. Caller holds the lock.
func (m *TokenMap) mint() string {
	buf := make([]byte, tokenLen)
	for {
		rand.Read(buf)
		out := make([]byte, tokenLen)
		for i, b := range buf {
			out[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
		}
		tok := string(out)
		if _, taken := m.byToken[tok]; !taken {
			return tok
		}
	}
}
