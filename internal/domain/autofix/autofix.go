package autofix

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/scottlz0310/ci-helper/internal/domain/ciherr"
	"github.com/scottlz0310/ci-helper/internal/domain/model"
)

// SnapshotManager is the subset of the snapshot manager the Fixer depends on.
type SnapshotManager interface {
	Create(files []string, description string) (*model.Snapshot, error)
	Verify(snap *model.Snapshot) bool
	Restore(snap *model.Snapshot) error
}

// DefaultCommandTimeout bounds each command step inside an auto-fix.
const DefaultCommandTimeout = 60 * time.Second

// Fixer applies fixes: preflight, snapshot, apply, verify, finalize.
type Fixer struct {
	fs       afero.Fs
	snapshot SnapshotManager
	policy   *Policy
	lock     lockAcquirer
}

// lockAcquirer is the minimal surface Fixer needs from fsx.ProjectLock,
// kept as an interface here so tests can fake it without a real flock.
type lockAcquirer interface {
	Acquire(ctx context.Context, timeout time.Duration) error
	Release() error
}

// New returns a Fixer. lock may be nil to skip the project-root mutation
// lock (e.g. in tests); in production pass an *fsx.ProjectLock.
func New(fs afero.Fs, snapshot SnapshotManager, policy *Policy, lock lockAcquirer) *Fixer {
	return &Fixer{fs: fs, snapshot: snapshot, policy: policy, lock: &lockAcquirer2{lock}}
}

// lockAcquirer2 tolerates a nil inner lock (no-op).
type lockAcquirer2 struct{ inner lockAcquirer }

func (l *lockAcquirer2) Acquire(ctx context.Context, timeout time.Duration) error {
	if l.inner == nil {
		return nil
	}
	return l.inner.Acquire(ctx, timeout)
}
func (l *lockAcquirer2) Release() error {
	if l.inner == nil {
		return nil
	}
	return l.inner.Release()
}

// Apply runs the fix procedure for a suggestion. Unless approved is true
// (explicit interactive yes) or the suggestion is auto-applicable, a
// policy error is returned without side effects.
func (f *Fixer) Apply(ctx context.Context, suggestion model.FixSuggestion, approved bool) (*model.FixResult, error) {
	if !approved && !suggestion.AutoApplicable {
		return nil, ciherr.New(ciherr.KindPolicy, "fix suggestion is not auto-applicable and was not explicitly approved")
	}

	if err := f.lock.Acquire(ctx, 30*time.Second); err != nil {
		return nil, ciherr.Wrap(ciherr.KindTimeout, "could not acquire project mutation lock", err)
	}
	defer f.lock.Release()

	if err := f.preflight(suggestion.Steps); err != nil {
		return nil, err
	}

	targets := f.targetPaths(suggestion.Steps)
	snap, err := f.snapshot.Create(targets, "pre-fix: "+suggestion.Title)
	if err != nil {
		return nil, ciherr.Wrap(ciherr.KindIO, "failed to snapshot fix targets", err)
	}

	applied, applyErr := f.applySteps(ctx, suggestion.Steps)
	if applyErr == nil {
		applyErr = f.verify(suggestion)
	}
	if applyErr == nil {
		return &model.FixResult{
			Success:            true,
			AppliedSteps:       applied,
			SnapshotID:         snap.ID,
			VerificationPassed: true,
			RollbackAvailable:  false,
		}, nil
	}

	restoreErr := f.snapshot.Restore(snap)
	rollbackOK := restoreErr == nil && f.snapshot.Verify(snap)
	if restoreErr != nil {
		return &model.FixResult{
			Success:           false,
			AppliedSteps:      applied,
			SnapshotID:        snap.ID,
			Error:             applyErr,
			RollbackAvailable: false,
		}, ciherr.Wrap(ciherr.KindRollbackFailed, fmt.Sprintf("rollback failed, manual restore required from snapshot %s", snap.ID), restoreErr)
	}
	return &model.FixResult{
		Success:           false,
		AppliedSteps:      applied,
		SnapshotID:        snap.ID,
		Error:             applyErr,
		RollbackAvailable: rollbackOK,
	}, nil
}

// preflight re-validates every step against the current filesystem:
// target paths still within root, allow-list still satisfied.
func (f *Fixer) preflight(steps []model.FixStep) error {
	for i, s := range steps {
		switch s.Kind {
		case model.StepFileEdit, model.StepFileCreate, model.StepFileDelete:
			abs, err := f.policy.NormalizePath(s.TargetPath)
			if err != nil {
				return ciherr.Wrap(ciherr.KindPolicy, fmt.Sprintf("step %d failed preflight", i), err)
			}
			if f.policy.AbsolutePathDenied(abs) {
				return ciherr.New(ciherr.KindPolicy, fmt.Sprintf("step %d targets a protected path", i))
			}
		case model.StepCommand:
			if !f.policy.CommandAllowed(s.Argv) {
				return ciherr.New(ciherr.KindPolicy, fmt.Sprintf("step %d command %q is not on the allow-list", i, firstOrEmpty(s.Argv)))
			}
		}
	}
	return nil
}

func firstOrEmpty(argv []string) string {
	if len(argv) == 0 {
		return ""
	}
	return argv[0]
}

// targetPaths resolves every file step's target against the project root,
// so the snapshot covers the same absolute paths the steps write to.
func (f *Fixer) targetPaths(steps []model.FixStep) []string {
	var out []string
	for _, s := range steps {
		if s.TargetPath == "" {
			continue
		}
		if abs, err := f.policy.NormalizePath(s.TargetPath); err == nil {
			out = append(out, abs)
		}
	}
	return out
}

// applySteps executes steps strictly in declared order.
func (f *Fixer) applySteps(ctx context.Context, steps []model.FixStep) ([]model.FixStep, error) {
	var applied []model.FixStep
	for _, s := range steps {
		var err error
		switch s.Kind {
		case model.StepFileEdit:
			err = f.applyFileEdit(s)
		case model.StepFileCreate:
			err = f.applyFileCreate(s)
		case model.StepFileDelete:
			err = f.applyFileDelete(s)
		case model.StepCommand:
			err = f.applyCommand(ctx, s)
		default:
			err = fmt.Errorf("unknown step kind %q", s.Kind)
		}
		if err != nil {
			return applied, ciherr.Wrap(ciherr.KindIO, fmt.Sprintf("step %v failed", s.Kind), err)
		}
		applied = append(applied, s)
	}
	return applied, nil
}

func (f *Fixer) applyFileEdit(s model.FixStep) error {
	abs, err := f.policy.NormalizePath(s.TargetPath)
	if err != nil {
		return err
	}
	var current []byte
	if existing, readErr := afero.ReadFile(f.fs, abs); readErr == nil {
		current = existing
	}
	var next []byte
	switch s.EditMode {
	case model.EditAppend:
		next = append(append([]byte{}, current...), []byte(s.Payload)...)
	case model.EditPrepend:
		next = append([]byte(s.Payload), current...)
	case model.EditReplace:
		next = []byte(s.Payload)
	case model.EditRegexSubstitute:
		parts := strings.SplitN(s.Payload, "=>", 2)
		if len(parts) != 2 {
			return fmt.Errorf("regex_substitute payload must be \"pattern=>replacement\"")
		}
		re, err := regexp.Compile(parts[0])
		if err != nil {
			return err
		}
		next = []byte(re.ReplaceAllString(string(current), parts[1]))
	default:
		return fmt.Errorf("unknown edit mode %q", s.EditMode)
	}
	return atomicWrite(f.fs, abs, next)
}

func (f *Fixer) applyFileCreate(s model.FixStep) error {
	abs, err := f.policy.NormalizePath(s.TargetPath)
	if err != nil {
		return err
	}
	if exists, _ := afero.Exists(f.fs, abs); exists {
		return fmt.Errorf("file_create target %s already exists", s.TargetPath)
	}
	return atomicWrite(f.fs, abs, []byte(s.Payload))
}

func (f *Fixer) applyFileDelete(s model.FixStep) error {
	abs, err := f.policy.NormalizePath(s.TargetPath)
	if err != nil {
		return err
	}
	if err := f.fs.Remove(abs); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// atomicWrite writes to a sibling temp file, syncs, then renames
// step 3). afero's in-memory fs has no real fsync; OsFs.Sync() on the
// underlying *os.File applies when fs is the real filesystem.
func atomicWrite(fs afero.Fs, path string, data []byte) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = fs.Remove(tmp)
		return err
	}
	if syncer, ok := f.(interface{ Sync() error }); ok {
		_ = syncer.Sync()
	}
	if err := f.Close(); err != nil {
		return err
	}
	return fs.Rename(tmp, path)
}

// applyCommand invokes argv with a bounded timeout, sanitized environment,
// and stdio captured to buffers only.
func (f *Fixer) applyCommand(ctx context.Context, s model.FixStep) error {
	if !f.policy.CommandAllowed(s.Argv) {
		return ciherr.New(ciherr.KindPolicy, fmt.Sprintf("command %q is not on the allow-list", firstOrEmpty(s.Argv)))
	}
	timeout := DefaultCommandTimeout
	if s.TimeoutSec > 0 {
		timeout = time.Duration(s.TimeoutSec) * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, s.Argv[0], s.Argv[1:]...)
	cmd.Dir = f.policy.ProjectRoot
	cmd.Env = sanitizedEnv()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return ciherr.New(ciherr.KindTimeout, fmt.Sprintf("command %v timed out after %s", s.Argv, timeout))
		}
		return fmt.Errorf("command %v failed: %w (stderr: %s)", s.Argv, err, stderr.String())
	}
	return nil
}

// sanitizedEnv strips everything but a minimal safe allowlist of
// environment variables so auto-fix commands cannot inherit credentials
// incidentally present in the runner's process environment.
func sanitizedEnv() []string {
	keep := map[string]bool{"PATH": true, "HOME": true, "LANG": true, "TMPDIR": true}
	var out []string
	for _, kv := range os.Environ() {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		if keep[kv[:eq]] {
			out = append(out, kv)
		}
	}
	return out
}

// verify runs each applied step's validation predicate plus the
// template's global validation sequence.
func (f *Fixer) verify(suggestion model.FixSuggestion) error {
	for _, s := range suggestion.Steps {
		if s.ValidationPredicate == "" {
			continue
		}
		if !f.evalPredicate(s.ValidationPredicate) {
			return fmt.Errorf("validation predicate failed: %s", s.ValidationPredicate)
		}
	}
	if suggestion.Template == nil {
		return nil
	}
	for _, v := range suggestion.Template.ValidationSteps {
		if !f.evalPredicate(v) {
			return fmt.Errorf("template validation step failed: %s", v)
		}
	}
	return nil
}

// evalPredicate supports the minimal predicate grammar
// "file_exists:<path>" and "file_contains:<path>:<substr>"; anything else
// is treated as already satisfied (predicates are opaque beyond this
// grammar and are supplied by trusted template authors).
func (f *Fixer) evalPredicate(predicate string) bool {
	parts := strings.SplitN(predicate, ":", 3)
	switch parts[0] {
	case "file_exists":
		if len(parts) < 2 {
			return false
		}
		abs, err := f.policy.NormalizePath(parts[1])
		if err != nil {
			return false
		}
		exists, _ := afero.Exists(f.fs, abs)
		return exists
	case "file_contains":
		if len(parts) < 3 {
			return false
		}
		abs, err := f.policy.NormalizePath(parts[1])
		if err != nil {
			return false
		}
		data, err := afero.ReadFile(f.fs, abs)
		if err != nil {
			return false
		}
		return strings.Contains(string(data), parts[2])
	default:
		return true
	}
}
