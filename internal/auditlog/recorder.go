// Package auditlog persists a robot's token-custody history and periodic
// ring-state snapshots for postmortem debugging of the healing protocol. It
// is adapted from the teacher's internal/replay: snappy-compressed JSON
// lines for discrete events (Writer.AppendEvent), zstd-compressed binary
// frames for periodic full snapshots (Writer.AppendFrame), and a
// Header/Manifest pair describing the bundle - the same shape, repurposed
// for ring custody instead of gameplay replay.
package auditlog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"icering/internal/logging"
)

var dirNameCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Recorder is one robot's audit sink: every custody event and periodic
// snapshot for its lifetime lands in a single bundle directory.
type Recorder struct {
	mu          sync.Mutex
	dir         string
	robotID     uint16
	now         func() time.Time
	logger      *logging.Logger
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	frameSeq    uint64
}

// NewRecorder creates a fresh audit bundle for robotID under root, opening
// compressed sinks for both the event log and the snapshot stream.
func NewRecorder(root string, robotID uint16, clock func() time.Time, logger *logging.Logger) (*Recorder, error) {
	if root == "" {
		return nil, fmt.Errorf("auditlog: root directory must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = logging.L()
	}

	created := clock().UTC()
	folder := dirNameCleaner.ReplaceAllString(fmt.Sprintf("robot-%d-%s", robotID, created.Format("20060102T150405Z")), "")
	dir := filepath.Join(root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	eventsPath := filepath.Join(dir, "events.jsonl.sz")
	snapshotsPath := filepath.Join(dir, "snapshots.bin.zst")
	manifestPath := filepath.Join(dir, "manifest.json")

	eventFile, err := os.Create(eventsPath)
	if err != nil {
		return nil, err
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	frameFile, err := os.Create(snapshotsPath)
	if err != nil {
		eventFile.Close()
		return nil, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		frameFile.Close()
		return nil, err
	}

	manifest := Manifest{
		Version:       1,
		CreatedAt:     created.Format(time.RFC3339Nano),
		RobotID:       robotID,
		EventsPath:    "events.jsonl.sz",
		SnapshotsPath: "snapshots.bin.zst",
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		frameStream.Close()
		frameFile.Close()
		eventStream.Close()
		eventFile.Close()
		return nil, err
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		frameStream.Close()
		frameFile.Close()
		eventStream.Close()
		eventFile.Close()
		return nil, err
	}

	return &Recorder{
		dir:         dir,
		robotID:     robotID,
		now:         clock,
		logger:      logger,
		eventFile:   eventFile,
		eventStream: eventStream,
		frameFile:   frameFile,
		frameStream: frameStream,
	}, nil
}

// Directory exposes the bundle directory backing this recorder.
func (r *Recorder) Directory() string {
	if r == nil {
		return ""
	}
	return r.dir
}

// RecordEvent appends a single custody event to the compressed event log,
// flushing immediately so a crash between events never loses a record.
func (r *Recorder) RecordEvent(ev CustodyEvent) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := r.eventStream.Write(line); err != nil {
		return err
	}
	if _, err := r.eventStream.Write([]byte("\n")); err != nil {
		return err
	}
	if err := r.eventStream.Flush(); err != nil {
		r.logger.Warn("auditlog: flush event stream failed", logging.Error(err))
		return err
	}
	return nil
}

// Snapshot writes a full ring-state frame and returns the bundle directory,
// satisfying httpapi.AuditSnapshotter when called through a process's
// SnapshotNow method.
func (r *Recorder) Snapshot(ctx context.Context, snap Snapshot) (string, error) {
	if r == nil {
		return "", fmt.Errorf("auditlog: recorder not configured")
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.frameSeq++
	header := make([]byte, 8+8+4)
	binary.BigEndian.PutUint64(header[0:8], r.frameSeq)
	binary.BigEndian.PutUint64(header[8:16], uint64(r.now().UTC().UnixNano()))
	binary.BigEndian.PutUint32(header[16:20], uint32(len(payload)))
	if _, err := r.frameStream.Write(header); err != nil {
		return "", err
	}
	if _, err := r.frameStream.Write(payload); err != nil {
		return "", err
	}
	if err := r.frameStream.Flush(); err != nil {
		return "", err
	}
	return r.dir, nil
}

// Close flushes and releases every sink, writing the final header document.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	headerPath := filepath.Join(r.dir, "header.json")
	header := Header{SchemaVersion: HeaderSchemaVersion, RobotID: r.robotID, FilePointer: "manifest.json"}
	if err := WriteHeader(headerPath, header); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.eventStream.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.eventStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.eventFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.frameStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.frameFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
