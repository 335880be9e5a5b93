package auditlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewRecorderWritesManifestAndHeaderOnClose(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, 2, fixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)), nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	bundle := rec.Directory()
	if _, err := os.Stat(filepath.Join(bundle, "manifest.json")); err != nil {
		t.Fatalf("expected manifest.json: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(bundle, "header.json")); err != nil {
		t.Fatalf("expected header.json after close: %v", err)
	}
}

func TestRecordEventAppendsToEventStream(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, 1, nil, nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	defer rec.Close()

	if err := rec.RecordEvent(CustodyEvent{Kind: EventTokenReceived, RobotID: 1, TokenKind: "order"}); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	info, err := os.Stat(filepath.Join(rec.Directory(), "events.jsonl.sz"))
	if err != nil {
		t.Fatalf("stat events file: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("expected non-empty event stream after RecordEvent")
	}
}

func TestSnapshotReturnsBundleDirectory(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, 3, nil, nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	defer rec.Close()

	location, err := rec.Snapshot(context.Background(), Snapshot{
		RobotID:         3,
		TokensObserved:  7,
		RobotsConnected: 3,
		Servings:        map[string]uint{"chocolate": 4},
	})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if location != rec.Directory() {
		t.Fatalf("expected location %q, got %q", rec.Directory(), location)
	}

	info, err := os.Stat(filepath.Join(rec.Directory(), "snapshots.bin.zst"))
	if err != nil {
		t.Fatalf("stat snapshots file: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("expected non-empty snapshot stream after Snapshot")
	}
}

func TestSnapshotRejectsCancelledContext(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, 4, nil, nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	defer rec.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := rec.Snapshot(ctx, Snapshot{RobotID: 4}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestCleanerRemovesBundlesBeyondMaxBundles(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		rec, err := NewRecorder(dir, uint16(i), fixedClock(time.Now().Add(time.Duration(i)*time.Second)), nil)
		if err != nil {
			t.Fatalf("NewRecorder %d: %v", i, err)
		}
		rec.Close()
		time.Sleep(time.Millisecond)
	}

	cleaner := NewCleaner(dir, RetentionPolicy{MaxBundles: 1}, nil)
	cleaner.RunOnce()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 retained bundle, got %d", len(entries))
	}
}
