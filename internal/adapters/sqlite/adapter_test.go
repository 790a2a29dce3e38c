package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/StarfishJ/SceneSound/internal/core/domain"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := NewAdapter(":memory:")
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAdapter_RecordAndRecent(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC)
	first := domain.AnalysisRecord{
		ID:         "a-1",
		RequestID:  "req-1",
		CreatedAt:  created,
		Stage:      domain.StageReady,
		Status:     200,
		Scenes:     []string{"beach", "calm"},
		Styles:     []string{"tropical house", "reggae", "ambient"},
		TrackCount: 12,
		HasImage:   true,
		HasText:    true,
		DurationMS: 1830,
	}
	second := domain.AnalysisRecord{
		RequestID: "req-2",
		Stage:     domain.StageClassifying,
		Status:    502,
		Degraded:  true,
		HasImage:  true,
	}

	if err := a.Record(ctx, first); err != nil {
		t.Fatalf("record first: %v", err)
	}
	if err := a.Record(ctx, second); err != nil {
		t.Fatalf("record second: %v", err)
	}

	got, err := a.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}

	newest := got[0]
	if newest.RequestID != "req-2" {
		t.Fatalf("expected newest first, got %q", newest.RequestID)
	}
	if newest.ID == "" {
		t.Fatal("expected generated id")
	}
	if newest.CreatedAt.IsZero() {
		t.Fatal("expected generated created_at")
	}
	if newest.Stage != domain.StageClassifying || newest.Status != 502 || !newest.Degraded {
		t.Fatalf("unexpected record: %+v", newest)
	}
	if newest.Scenes == nil || len(newest.Scenes) != 0 {
		t.Fatalf("expected empty scenes, got %#v", newest.Scenes)
	}

	oldest := got[1]
	if oldest.ID != "a-1" || !oldest.CreatedAt.Equal(created) {
		t.Fatalf("unexpected id/time: %s %s", oldest.ID, oldest.CreatedAt)
	}
	if len(oldest.Styles) != 3 || oldest.Styles[0] != "tropical house" {
		t.Fatalf("styles mismatch: %v", oldest.Styles)
	}
	if len(oldest.Scenes) != 2 || oldest.Scenes[1] != "calm" {
		t.Fatalf("scenes mismatch: %v", oldest.Scenes)
	}
	if oldest.TrackCount != 12 || oldest.DurationMS != 1830 || !oldest.HasText || oldest.Degraded {
		t.Fatalf("unexpected record: %+v", oldest)
	}
}

func TestAdapter_RecentLimit(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := a.Record(ctx, domain.AnalysisRecord{RequestID: "r", Stage: domain.StageReady, Status: 200}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	tests := []struct {
		limit int
		want  int
	}{
		{limit: 2, want: 2},
		{limit: 0, want: 5},
		{limit: -1, want: 5},
		{limit: 1000, want: 5},
	}
	for _, tt := range tests {
		got, err := a.Recent(ctx, tt.limit)
		if err != nil {
			t.Fatalf("recent(%d): %v", tt.limit, err)
		}
		if len(got) != tt.want {
			t.Fatalf("recent(%d): got %d records, want %d", tt.limit, len(got), tt.want)
		}
	}
}

func TestAdapter_DuplicateID(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	rec := domain.AnalysisRecord{ID: "dup", RequestID: "r", Stage: domain.StageReady, Status: 200}
	if err := a.Record(ctx, rec); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := a.Record(ctx, rec); err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestAdapter_ReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenesound.db")
	ctx := context.Background()

	a, err := NewAdapter(path)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := a.Record(ctx, domain.AnalysisRecord{RequestID: "persisted", Stage: domain.StageReady, Status: 200}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Re-running the migration on an existing file must be a no-op.
	b, err := NewAdapter(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()

	got, err := b.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].RequestID != "persisted" {
		t.Fatalf("unexpected records after reopen: %+v", got)
	}
}
