// Package unknownlog persists failures no pattern recognized, one JSONL
// record per failure, so the Learning Engine can later group them by
// fingerprint and similarity and synthesize candidate patterns.
package unknownlog

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

// unknownLine is one on-disk record: a failure plus the id of the run it
// came from. ReadAll does not return the run id, so discovery counts
// failures, not distinct runs.
type unknownLine struct {
	RunID       string   `json:"run_id"`
	Kind        string   `json:"kind"`
	Message     string   `json:"message"`
	FilePath    string   `json:"file_path,omitempty"`
	LineNumber  int      `json:"line_number,omitempty"`
	Fingerprint string   `json:"fingerprint"`
	Context     []string `json:"context,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

// Recorder appends unmatched failures to an O_APPEND JSONL file.
type Recorder struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
}

// New opens (creating if absent) the unknown-failure log at path.
func New(path string) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ciherr.Wrap(ciherr.KindIO, "failed to create unknown-failure log directory", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, ciherr.Wrap(ciherr.KindIO, "failed to open unknown-failure log", err)
	}
	return &Recorder{path: path, file: f, w: bufio.NewWriter(f)}, nil
}

// Record appends every failure of one run under a shared run id. An empty
// runID gets a generated one so distinct invocations stay distinguishable.
func (r *Recorder) Record(runID string, failures []model.Failure) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if runID == "" {
		runID = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, f := range failures {
		line := unknownLine{
			RunID:       runID,
			Kind:        string(f.Kind),
			Message:     f.Message,
			FilePath:    f.FilePath,
			LineNumber:  f.LineNumber,
			Fingerprint: f.Fingerprint,
			Context:     f.ContextAfter,
			Timestamp:   now,
		}
		b, err := json.Marshal(line)
		if err != nil {
			return ciherr.Wrap(ciherr.KindIO, "failed to marshal unknown-failure entry", err)
		}
		b = append(b, '\n')
		if _, err := r.w.Write(b); err != nil {
			return ciherr.Wrap(ciherr.KindIO, "failed to append unknown-failure entry", err)
		}
	}
	if err := r.w.Flush(); err != nil {
		return ciherr.Wrap(ciherr.KindIO, "failed to flush unknown-failure log", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.w.Flush(); err != nil {
		return err
	}
	return r.file.Close()
}

// ReadAll loads every recorded failure back, in append order.
func ReadAll(path string) ([]model.Failure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ciherr.Wrap(ciherr.KindIO, "failed to read unknown-failure log", err)
	}
	var out []model.Failure
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var line unknownLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			// A torn tail line (crash mid-append) is skipped, not fatal.
			continue
		}
		out = append(out, model.Failure{
			Kind:         model.FailureKind(line.Kind),
			Message:      line.Message,
			FilePath:     line.FilePath,
			LineNumber:   line.LineNumber,
			Fingerprint:  line.Fingerprint,
			ContextAfter: line.Context,
		})
	}
	if err := sc.Err(); err != nil && err != io.EOF {
		return nil, ciherr.Wrap(ciherr.KindIO, "failed to scan unknown-failure log", err)
	}
	return out, nil
}
