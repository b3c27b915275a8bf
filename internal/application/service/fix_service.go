package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/scottlz0310/ci-helper/internal/application/port/output"
	"github.com/scottlz0310/ci-helper/internal/domain/autofix"
	"github.com/scottlz0310/ci-helper/internal/domain/model"
	"github.com/scottlz0310/ci-helper/internal/infra/snapshotstore"
)

// FixService applies approved fix suggestions through the Auto Fixer and,
// when a mirror is configured, copies the pre-fix snapshot off the local
// disk. Mirroring is best-effort: a mirror failure is logged, never
// propagated, since the local snapshot remains the source of truth.
type FixService struct {
	fixer     *autofix.Fixer
	snapshots *snapshotstore.Manager
	mirror    output.SnapshotMirror // nil disables mirroring
	log       *logrus.Entry
}

// NewFixService wires the auto-fix path. mirror may be nil.
func NewFixService(fixer *autofix.Fixer, snapshots *snapshotstore.Manager, mirror output.SnapshotMirror, log *logrus.Logger) *FixService {
	if log == nil {
		log = logrus.New()
	}
	return &FixService{
		fixer:     fixer,
		snapshots: snapshots,
		mirror:    mirror,
		log:       log.WithField("component", "fix_service"),
	}
}

// Apply runs preflight, snapshot, apply, verify, finalize. approved
// carries the caller's explicit permission (interactive yes or the
// auto-apply-low-risk flag). The
// FixResult is returned even on failure so the caller can report the
// snapshot id; the error carries its kind tag.
func (s *FixService) Apply(ctx context.Context, suggestion model.FixSuggestion, approved bool) (*model.FixResult, error) {
	result, err := s.fixer.Apply(ctx, suggestion, approved)
	if result != nil && result.SnapshotID != "" {
		s.mirrorSnapshot(ctx, result.SnapshotID)
	}
	return result, err
}

func (s *FixService) mirrorSnapshot(ctx context.Context, id string) {
	if s.mirror == nil {
		return
	}
	manifest, files, err := s.snapshots.Export(id)
	if err != nil {
		s.log.WithError(err).WithField("snapshot", id).Warn("could not export snapshot for mirroring")
		return
	}
	entry, err := s.mirror.SaveSnapshot(ctx, output.SaveSnapshotRequest{
		SnapshotID: id,
		Manifest:   manifest,
		Files:      files,
	})
	if err != nil {
		s.log.WithError(err).WithField("snapshot", id).Warn("snapshot mirror upload failed")
		return
	}
	s.log.WithFields(logrus.Fields{"snapshot": id, "path": entry.StoragePath}).Debug("snapshot mirrored")
}
