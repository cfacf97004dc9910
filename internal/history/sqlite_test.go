package history

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteRecordAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	sink, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer sink.Close()

	started := time.Now().Add(-time.Minute)
	entries := []Entry{
		{TaskID: "t1", AgentName: "coder-1", Status: "completed", RetryCount: 0, StartedAt: started, CompletedAt: time.Now()},
		{TaskID: "t2", AgentName: "coder-1", Status: "failed", Detail: "boom", RetryCount: 2, StartedAt: started, CompletedAt: time.Now()},
	}
	for _, e := range entries {
		if err := sink.Record(e); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	recent, err := sink.Recent(10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	// Newest first.
	if recent[0].TaskID != "t2" {
		t.Errorf("expected t2 first, got %s", recent[0].TaskID)
	}
	if recent[0].Detail != "boom" || recent[0].RetryCount != 2 {
		t.Errorf("entry fields not preserved: %+v", recent[0])
	}
}

func TestSQLiteMigrateIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	sink, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	if err := sink.Record(Entry{TaskID: "t1", AgentName: "a", Status: "completed"}); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	sink.Close()

	// Re-opening must not re-apply migrations or lose data.
	sink, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	defer sink.Close()

	recent, err := sink.Recent(10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recent) != 1 {
		t.Errorf("expected 1 entry to survive reopen, got %d", len(recent))
	}
}

func TestNopSink(t *testing.T) {
	var s Sink = Nop{}
	if err := s.Record(Entry{TaskID: "x"}); err != nil {
		t.Errorf("nop sink must never error, got %v", err)
	}
}
