// Package feedbacklog implements the feedback recorder: an
// append-only JSONL log of UserFeedback, durable-fsynced every N entries
// or T seconds, whichever comes first.
package feedbacklog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scottlz0310/ci-helper/internal/domain/ciherr"
	"github.com/scottlz0310/ci-helper/internal/domain/model"
)

// feedbackLine is the on-disk schema for one JSONL record.
type feedbackLine struct {
	ID              string `json:"id"`
	PatternID       string `json:"pattern_id"`
	FixSuggestionID string `json:"fix_suggestion_id,omitempty"`
	Rating          int    `json:"rating"`
	Success         bool   `json:"success"`
	Comment         string `json:"comment"`
	Timestamp       string `json:"timestamp"`
}

// Recorder appends UserFeedback to an O_APPEND JSONL file and fsyncs on a
// count/time schedule.
type Recorder struct {
	mu          sync.Mutex
	path        string
	file        *os.File
	writer      *bufio.Writer
	sinceFsync  int
	lastFsync   time.Time
	fsyncEvery  int
	fsyncPeriod time.Duration
}

// New opens (creating if absent) the feedback log at path.
func New(path string, fsyncEvery int, fsyncPeriod time.Duration) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ciherr.Wrap(ciherr.KindIO, "failed to create feedback log directory", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, ciherr.Wrap(ciherr.KindIO, "failed to open feedback log", err)
	}
	if fsyncEvery <= 0 {
		fsyncEvery = 20
	}
	if fsyncPeriod <= 0 {
		fsyncPeriod = 5 * time.Second
	}
	return &Recorder{
		path:        path,
		file:        f,
		writer:      bufio.NewWriter(f),
		lastFsync:   time.Now(),
		fsyncEvery:  fsyncEvery,
		fsyncPeriod: fsyncPeriod,
	}, nil
}

// Record appends one feedback entry. A write error is surfaced; there is
// no in-memory retry queue (feedback loss on disk failure is
// accepted and reported).
func (r *Recorder) Record(fb model.UserFeedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.Timestamp.IsZero() {
		fb.Timestamp = time.Now().UTC()
	}
	line := feedbackLine{
		ID:              fb.ID,
		PatternID:       fb.PatternID,
		FixSuggestionID: fb.FixSuggestionID,
		Rating:          fb.Rating,
		Success:         fb.Success,
		Comment:         fb.Comment,
		Timestamp:       fb.Timestamp.Format(time.RFC3339Nano),
	}
	b, err := json.Marshal(line)
	if err != nil {
		return ciherr.Wrap(ciherr.KindIO, "failed to marshal feedback entry", err)
	}
	b = append(b, '\n')
	if _, err := r.writer.Write(b); err != nil {
		return ciherr.Wrap(ciherr.KindIO, "failed to append feedback entry", err)
	}
	if err := r.writer.Flush(); err != nil {
		return ciherr.Wrap(ciherr.KindIO, "failed to flush feedback entry", err)
	}

	r.sinceFsync++
	if r.sinceFsync >= r.fsyncEvery || time.Since(r.lastFsync) >= r.fsyncPeriod {
		if err := r.file.Sync(); err != nil {
			return ciherr.Wrap(ciherr.KindIO, "failed to fsync feedback log", err)
		}
		r.sinceFsync = 0
		r.lastFsync = time.Now()
	}
	return nil
}

// Close flushes and closes the underlying file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.writer.Flush()
	_ = r.file.Sync()
	return r.file.Close()
}

// ReadAll reads every feedback entry currently on disk, in file order.
func (r *Recorder) ReadAll() ([]model.UserFeedback, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, ciherr.Wrap(ciherr.KindIO, "failed to read feedback log", err)
	}
	return parseLines(data)
}

// ByPattern groups every recorded feedback entry by pattern id.
func (r *Recorder) ByPattern() (map[string][]model.UserFeedback, error) {
	all, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	out := map[string][]model.UserFeedback{}
	for _, fb := range all {
		out[fb.PatternID] = append(out[fb.PatternID], fb)
	}
	return out, nil
}

func parseLines(data []byte) ([]model.UserFeedback, error) {
	var out []model.UserFeedback
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var line feedbackLine
		if err := dec.Decode(&line); err != nil {
			if err == io.EOF {
				break
			}
			return nil, ciherr.Wrap(ciherr.KindParse, "failed to parse feedback entry", err)
		}
		ts, _ := time.Parse(time.RFC3339Nano, line.Timestamp)
		out = append(out, model.UserFeedback{
			ID:              line.ID,
			PatternID:       line.PatternID,
			FixSuggestionID: line.FixSuggestionID,
			Rating:          line.Rating,
			Success:         line.Success,
			Comment:         line.Comment,
			Timestamp:       ts,
		})
	}
	return out, nil
}
