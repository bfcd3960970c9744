package storage

import (
	"path/filepath"
	"testing"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewRequiresPath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("Expected error for empty db path")
	}
}

func TestMessages(t *testing.T) {
	s := newTestStorage(t)

	if err := s.AddMessage("session-1", "user", "What genres does Hades have?"); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}
	if err := s.AddMessage("session-1", "assistant", "Hades - genres: action, role-playing"); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}
	if err := s.AddMessage("session-2", "user", "other session"); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	msgs, err := s.GetMessages("session-1", 100)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	// Insertion order preserved
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("Unexpected message order: %s, %s", msgs[0].Role, msgs[1].Role)
	}

	if err := s.ClearMessages("session-1"); err != nil {
		t.Fatalf("ClearMessages failed: %v", err)
	}
	msgs, err = s.GetMessages("session-1", 100)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("Expected 0 messages after clear, got %d", len(msgs))
	}

	// Other session untouched
	msgs, _ = s.GetMessages("session-2", 100)
	if len(msgs) != 1 {
		t.Errorf("Expected 1 message in session-2, got %d", len(msgs))
	}
}

func TestGetMessagesEmpty(t *testing.T) {
	s := newTestStorage(t)

	msgs, err := s.GetMessages("nope", 10)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if msgs == nil {
		t.Error("Expected empty slice, not nil")
	}
	if len(msgs) != 0 {
		t.Errorf("Expected 0 messages, got %d", len(msgs))
	}
}

func TestLookups(t *testing.T) {
	s := newTestStorage(t)

	if err := s.RecordLookup("Hades", "Hades (video game)", "genres", "ok"); err != nil {
		t.Fatalf("RecordLookup failed: %v", err)
	}
	if err := s.RecordLookup("Nonexistent Game", "", "story", "not_found"); err != nil {
		t.Fatalf("RecordLookup failed: %v", err)
	}

	lookups, err := s.GetRecentLookups(10)
	if err != nil {
		t.Fatalf("GetRecentLookups failed: %v", err)
	}
	if len(lookups) != 2 {
		t.Fatalf("Expected 2 lookups, got %d", len(lookups))
	}
	// Newest first
	if lookups[0].Name != "Nonexistent Game" {
		t.Errorf("Expected newest lookup first, got %s", lookups[0].Name)
	}
	if lookups[0].Kind != "not_found" {
		t.Errorf("Unexpected kind: %s", lookups[0].Kind)
	}
	if lookups[1].Title != "Hades (video game)" {
		t.Errorf("Unexpected title: %s", lookups[1].Title)
	}

	// Limit applies
	lookups, _ = s.GetRecentLookups(1)
	if len(lookups) != 1 {
		t.Errorf("Expected 1 lookup with limit, got %d", len(lookups))
	}
}

func TestSessionMeta(t *testing.T) {
	s := newTestStorage(t)

	// Missing session returns zero meta, not an error
	meta, err := s.GetSessionMeta("missing")
	if err != nil {
		t.Fatalf("GetSessionMeta failed: %v", err)
	}
	if meta.SessionKey != "missing" || meta.TotalTokens != 0 {
		t.Errorf("Unexpected meta for missing session: %+v", meta)
	}

	if err := s.UpsertSessionMeta(SessionMeta{SessionKey: "s1", TotalTokens: 1234}); err != nil {
		t.Fatalf("UpsertSessionMeta failed: %v", err)
	}
	meta, err = s.GetSessionMeta("s1")
	if err != nil {
		t.Fatalf("GetSessionMeta failed: %v", err)
	}
	if meta.TotalTokens != 1234 {
		t.Errorf("Expected 1234 tokens, got %d", meta.TotalTokens)
	}

	// Upsert updates in place
	if err := s.UpsertSessionMeta(SessionMeta{SessionKey: "s1", TotalTokens: 2000}); err != nil {
		t.Fatalf("UpsertSessionMeta failed: %v", err)
	}
	meta, _ = s.GetSessionMeta("s1")
	if meta.TotalTokens != 2000 {
		t.Errorf("Expected 2000 tokens, got %d", meta.TotalTokens)
	}

	sessions, err := s.GetAllSessions()
	if err != nil {
		t.Fatalf("GetAllSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("Expected 1 session, got %d", len(sessions))
	}
}

func TestResetSession(t *testing.T) {
	s := newTestStorage(t)

	s.AddMessage("s1", "user", "hi")
	s.UpsertSessionMeta(SessionMeta{SessionKey: "s1", TotalTokens: 500})

	if err := s.ResetSession("s1"); err != nil {
		t.Fatalf("ResetSession failed: %v", err)
	}

	msgs, _ := s.GetMessages("s1", 10)
	if len(msgs) != 0 {
		t.Errorf("Expected 0 messages after reset, got %d", len(msgs))
	}
	meta, _ := s.GetSessionMeta("s1")
	if meta.TotalTokens != 0 {
		t.Errorf("Expected 0 tokens after reset, got %d", meta.TotalTokens)
	}
}

func TestConfig(t *testing.T) {
	s := newTestStorage(t)

	if err := s.SetConfig("llm", "model", "gpt-4o"); err != nil {
		t.Fatalf("SetConfig failed: %v", err)
	}

	value, err := s.GetConfig("llm", "model")
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if value != "gpt-4o" {
		t.Errorf("Expected 'gpt-4o', got '%s'", value)
	}

	// Missing key returns empty, not error
	value, err = s.GetConfig("llm", "missing")
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if value != "" {
		t.Errorf("Expected empty value, got '%s'", value)
	}

	// Overwrite
	if err := s.SetConfig("llm", "model", "gemini-2.0-flash"); err != nil {
		t.Fatalf("SetConfig failed: %v", err)
	}
	value, _ = s.GetConfig("llm", "model")
	if value != "gemini-2.0-flash" {
		t.Errorf("Expected updated value, got '%s'", value)
	}

	s.SetConfig("llm", "provider", "google")
	section, err := s.GetConfigSection("llm")
	if err != nil {
		t.Fatalf("GetConfigSection failed: %v", err)
	}
	if len(section) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(section))
	}

	if err := s.DeleteConfig("llm", "provider"); err != nil {
		t.Fatalf("DeleteConfig failed: %v", err)
	}
	section, _ = s.GetConfigSection("llm")
	if len(section) != 1 {
		t.Errorf("Expected 1 entry after delete, got %d", len(section))
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestStorage(t)

	// No limit configured = unlimited
	allowed, err := s.CheckRateLimit("/api/chat", "client-1")
	if err != nil {
		t.Fatalf("CheckRateLimit failed: %v", err)
	}
	if !allowed {
		t.Error("Unconfigured endpoint should be unlimited")
	}

	if err := s.SetRateLimit("/api/chat", "client-1", 3); err != nil {
		t.Fatalf("SetRateLimit failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		allowed, err := s.CheckRateLimit("/api/chat", "client-1")
		if err != nil {
			t.Fatalf("CheckRateLimit failed: %v", err)
		}
		if !allowed {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	allowed, err = s.CheckRateLimit("/api/chat", "client-1")
	if err != nil {
		t.Fatalf("CheckRateLimit failed: %v", err)
	}
	if allowed {
		t.Error("Fourth request should be rejected")
	}

	if err := s.DeleteRateLimit("/api/chat", "client-1"); err != nil {
		t.Fatalf("DeleteRateLimit failed: %v", err)
	}
	allowed, _ = s.CheckRateLimit("/api/chat", "client-1")
	if !allowed {
		t.Error("Deleted limit should mean unlimited")
	}
}

func TestStats(t *testing.T) {
	s := newTestStorage(t)

	s.AddMessage("s1", "user", "hi")
	s.RecordLookup("Hades", "Hades (video game)", "genres", "ok")
	s.UpsertSessionMeta(SessionMeta{SessionKey: "s1"})

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats["messages"] != 1 || stats["lookups"] != 1 || stats["sessions"] != 1 {
		t.Errorf("Unexpected stats: %v", stats)
	}
}
