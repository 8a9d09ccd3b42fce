package history

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDisabledPathReturnsNilStore(t *testing.T) {
	s, err := Open("disabled")
	if err != nil || s != nil {
		t.Fatalf("Open(disabled) = %v, %v; want nil, nil", s, err)
	}
	if err := s.AddRun(Record{}); err != nil {
		t.Fatalf("AddRun on nil store should no-op: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close on nil store should no-op: %v", err)
	}
}

func TestAddAndListRuns(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for i := 0; i < 3; i++ {
		rec := Record{
			StartedAt:  time.Now(),
			Protocols:  []string{"LLDP"},
			ExitReason: "clean",
		}
		if err := s.AddRun(rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListRuns(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("ListRuns(2) returned %d records, want 2", len(got))
	}
	if got[0].ID < got[1].ID {
		t.Fatalf("expected most-recent-first ordering, got %+v", got)
	}
}
