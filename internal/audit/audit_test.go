package audit

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	entries := []Entry{
		{Actor: "ops", Action: ActionCreate, Subject: "BRA"},
		{Actor: "ops", Action: ActionUpdate, Subject: "BRA", Detail: "currency_name"},
		{Actor: "admin", Action: ActionDelete, Subject: "ARG"},
	}
	for _, e := range entries {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recent, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d entries, want 2", len(recent))
	}
	if recent[0].Action != ActionDelete || recent[0].Subject != "ARG" {
		t.Errorf("newest entry = %+v", recent[0])
	}
	if recent[1].Action != ActionUpdate || recent[1].Detail != "currency_name" {
		t.Errorf("second entry = %+v", recent[1])
	}
	if recent[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not set on append")
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		if err := s.Append(ctx, Entry{Actor: "ops", Action: ActionCreate, Subject: "XXX"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := s.Append(ctx, Entry{Actor: "ops", Action: ActionImport, Subject: "batch"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[ActionCreate] != 3 || stats[ActionImport] != 1 {
		t.Errorf("stats = %v", stats)
	}
}

func TestRecentEmptyTrail(t *testing.T) {
	s := openTestStore(t)
	recent, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 0 {
		t.Errorf("got %d entries from empty trail", len(recent))
	}
}
