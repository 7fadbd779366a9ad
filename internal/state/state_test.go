package state

import (
	"testing"
	"time"
)

// TestReplyContextConsumeOnce verifies that a stored context is returned
// exactly once.
func TestReplyContextConsumeOnce(t *testing.T) {
	s := NewReplyContextStore(time.Minute)
	ref := MessageRef{ChatID: 1, MessageID: 10}
	s.Put(ref, TweakParamEdit{MasterAccountID: "m1", SessionKey: "g1_m1", Param: "input_seed"})

	got, ok := s.Consume(ref)
	if !ok {
		t.Fatal("first consume missed")
	}
	if got.Kind() != KindTweakParamEdit {
		t.Errorf("kind = %s", got.Kind())
	}
	tpe, ok := got.(TweakParamEdit)
	if !ok || tpe.Param != "input_seed" {
		t.Errorf("context = %+v", got)
	}
	if _, ok := s.Consume(ref); ok {
		t.Error("second consume should miss")
	}
}

// TestReplyContextReplace verifies that a second Put on the same message
// replaces the stored context.
func TestReplyContextReplace(t *testing.T) {
	s := NewReplyContextStore(time.Minute)
	ref := MessageRef{ChatID: 1, MessageID: 10}
	s.Put(ref, LoraImportURL{MasterAccountID: "m1"})
	s.Put(ref, CollectionName{MasterAccountID: "m1"})

	got, ok := s.Consume(ref)
	if !ok || got.Kind() != KindCollectionName {
		t.Errorf("got %v ok=%v, want collection_name", got, ok)
	}
	if s.Len() != 0 {
		t.Errorf("len = %d after consume", s.Len())
	}
}

// TestReplyContextExpiry verifies that contexts vanish after their TTL.
func TestReplyContextExpiry(t *testing.T) {
	s := NewReplyContextStore(20 * time.Millisecond)
	ref := MessageRef{ChatID: 1, MessageID: 10}
	s.Put(ref, TrainingName{MasterAccountID: "m1"})

	deadline := time.Now().Add(time.Second)
	for s.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := s.Consume(ref); ok {
		t.Error("context survived past TTL")
	}
}

// TestSessionKey verifies the generation and account key format.
func TestSessionKey(t *testing.T) {
	if got := SessionKey("gen-1", "m42"); got != "gen-1_m42" {
		t.Errorf("SessionKey = %q", got)
	}
}

// TestTweakSessionDraft verifies that drafts are isolated per user and
// that SetParam marks the session dirty.
func TestTweakSessionDraft(t *testing.T) {
	s := NewTweakSessionStore(time.Hour, nil)
	s.Put(&TweakSession{
		GenerationID:    "g1",
		MasterAccountID: "m1",
		ToolID:          "tool-img",
		Draft:           map[string]any{"input_seed": float64(100)},
	})
	s.Put(&TweakSession{
		GenerationID:    "g1",
		MasterAccountID: "m2",
		ToolID:          "tool-img",
		Draft:           map[string]any{"input_seed": float64(100)},
	})

	if !s.SetParam("g1_m1", "input_steps", int64(30)) {
		t.Fatal("SetParam missed")
	}

	one, ok := s.Get("g1_m1")
	if !ok || !one.Dirty {
		t.Fatalf("session m1 = %+v ok=%v", one, ok)
	}
	if one.Draft["input_steps"] != int64(30) {
		t.Errorf("draft m1 = %v", one.Draft)
	}

	two, ok := s.Get("g1_m2")
	if !ok || two.Dirty {
		t.Fatalf("session m2 = %+v ok=%v", two, ok)
	}
	if _, leaked := two.Draft["input_steps"]; leaked {
		t.Error("edit leaked across per-user sessions")
	}
}

// TestTweakSessionGetReturnsCopy verifies that mutating a returned session
// does not affect the stored one.
func TestTweakSessionGetReturnsCopy(t *testing.T) {
	s := NewTweakSessionStore(time.Hour, nil)
	s.Put(&TweakSession{
		GenerationID:    "g1",
		MasterAccountID: "m1",
		Draft:           map[string]any{"input_prompt": "a cat"},
	})

	cp, _ := s.Get("g1_m1")
	cp.Draft["input_prompt"] = "mutated"

	again, _ := s.Get("g1_m1")
	if again.Draft["input_prompt"] != "a cat" {
		t.Errorf("stored draft mutated through copy: %v", again.Draft)
	}
}

// TestTweakSessionExpiry verifies lazy expiry on Get and token release on
// eviction.
func TestTweakSessionExpiry(t *testing.T) {
	var evicted []string
	s := NewTweakSessionStore(10*time.Millisecond, func(key string) {
		evicted = append(evicted, key)
	})
	s.Put(&TweakSession{GenerationID: "g1", MasterAccountID: "m1", Draft: map[string]any{}})

	time.Sleep(25 * time.Millisecond)
	if _, ok := s.Get("g1_m1"); ok {
		t.Fatal("expired session still returned")
	}
	if len(evicted) != 1 || evicted[0] != "g1_m1" {
		t.Errorf("evicted = %v", evicted)
	}
}

// TestTweakSessionSweep verifies the periodic sweep drops only expired
// sessions.
func TestTweakSessionSweep(t *testing.T) {
	s := NewTweakSessionStore(15*time.Millisecond, nil)
	s.Put(&TweakSession{GenerationID: "old", MasterAccountID: "m1", Draft: map[string]any{}})
	time.Sleep(30 * time.Millisecond)
	s.Put(&TweakSession{GenerationID: "new", MasterAccountID: "m1", Draft: map[string]any{}})

	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep = %d, want 1", n)
	}
	if _, ok := s.Get("new_m1"); !ok {
		t.Error("fresh session swept")
	}
}

// TestTokenMap verifies token stability, resolution, and release.
func TestTokenMap(t *testing.T) {
	m := NewTokenMap()
	tok := m.Acquire("g1_m1")
	if len(tok) != 8 {
		t.Fatalf("token %q length = %d, want 8", tok, len(tok))
	}
	if again := m.Acquire("g1_m1"); again != tok {
		t.Errorf("token not stable: %q then %q", tok, again)
	}

	key, ok := m.SessionKey(tok)
	if !ok || key != "g1_m1" {
		t.Errorf("SessionKey(%q) = %q ok=%v", tok, key, ok)
	}

	other := m.Acquire("g2_m1")
	if other == tok {
		t.Error("distinct keys share a token")
	}

	m.Release("g1_m1")
	if _, ok := m.SessionKey(tok); ok {
		t.Error("released token still resolves")
	}
	if m.Len() != 1 {
		t.Errorf("len = %d after release", m.Len())
	}
}
