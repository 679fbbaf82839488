package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	// Verify the database file doesn't exist yet
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatal("database file should not exist before creating store")
	}

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file should exist after creating store")
	}
	if s.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", s.Path(), dbPath)
	}
}

func TestNewStore_RunsMigrations(t *testing.T) {
	s := newTestStore(t)

	objects := []struct {
		kind string
		name string
	}{
		{"table", "alerts"},
		{"index", "idx_alerts_fired_at"},
	}
	for _, o := range objects {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type=? AND name=?",
			o.kind, o.name,
		).Scan(&name)
		if err != nil {
			t.Errorf("%s %q should exist after migrations: %v", o.kind, o.name, err)
		}
	}
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := s.Alerts().Create(&Alert{ID: "a1", Seq: 1, Detector: "yolo"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	s.Close()

	// Migrations must be safe to re-run against an existing file.
	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer s.Close()

	n, err := s.Alerts().Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestStore_Close(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("close should not return error: %v", err)
	}

	// After closing, DB operations should fail
	if _, err := s.DB().Exec("SELECT 1"); err == nil {
		t.Error("DB operations should fail after close")
	}
}

func TestAlertRepository_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.Alerts()

	fired := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	want := &Alert{
		ID:             "0b6f8a7e-1d7c-4e0b-9c61-5b1f3a1d2e44",
		Seq:            3,
		Detector:       "haar-cascade",
		Candidates:     2,
		BestConfidence: 1,
		SnapshotPath:   "detected_cats/cat_20260314_150926.jpg",
		FiredAt:        fired,
	}
	if err := repo.Create(want); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(want.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if got.Seq != want.Seq || got.Detector != want.Detector || got.Candidates != want.Candidates {
		t.Errorf("GetByID() = %+v, want %+v", got, want)
	}
	if got.BestConfidence != want.BestConfidence {
		t.Errorf("BestConfidence = %v, want %v", got.BestConfidence, want.BestConfidence)
	}
	if got.SnapshotPath != want.SnapshotPath {
		t.Errorf("SnapshotPath = %q, want %q", got.SnapshotPath, want.SnapshotPath)
	}
	if !got.FiredAt.Equal(fired) {
		t.Errorf("FiredAt = %v, want %v", got.FiredAt, fired)
	}
}

func TestAlertRepository_CreateDefaultsFiredAt(t *testing.T) {
	s := newTestStore(t)

	a := &Alert{ID: "a1", Seq: 1, Detector: "mock"}
	if err := s.Alerts().Create(a); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a.FiredAt.IsZero() {
		t.Error("Create() should set FiredAt when it is zero")
	}
}

func TestAlertRepository_CreateDuplicateID(t *testing.T) {
	s := newTestStore(t)
	repo := s.Alerts()

	if err := repo.Create(&Alert{ID: "dup", Seq: 1, Detector: "mock"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(&Alert{ID: "dup", Seq: 2, Detector: "mock"}); err == nil {
		t.Error("Create() with a duplicate ID should fail")
	}
}

func TestAlertRepository_GetByIDNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Alerts().GetByID("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestAlertRepository_List(t *testing.T) {
	s := newTestStore(t)
	repo := s.Alerts()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		a := &Alert{
			ID:       string(rune('a' + i - 1)),
			Seq:      i,
			Detector: "yolo",
			FiredAt:  base.Add(time.Duration(i) * 10 * time.Second),
		}
		if err := repo.Create(a); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}

	tests := []struct {
		name     string
		limit    int
		wantSeqs []int
	}{
		{"all", 0, []int{5, 4, 3, 2, 1}},
		{"negative means all", -1, []int{5, 4, 3, 2, 1}},
		{"limited", 2, []int{5, 4}},
		{"limit above count", 10, []int{5, 4, 3, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(tt.limit)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != len(tt.wantSeqs) {
				t.Fatalf("List() returned %d alerts, want %d", len(got), len(tt.wantSeqs))
			}
			for i, seq := range tt.wantSeqs {
				if got[i].Seq != seq {
					t.Errorf("List()[%d].Seq = %d, want %d", i, got[i].Seq, seq)
				}
			}
		})
	}
}

func TestAlertRepository_ListEmpty(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Alerts().List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("List() on empty store returned %d alerts", len(got))
	}

	n, err := s.Alerts().Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}
