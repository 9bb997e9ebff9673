// Package checkpoint persists per-phase pipeline state so interrupted runs
// resume from the last completed phase instead of re-spending API quota.
package checkpoint

import (
	"context"
	"time"

	"github.com/riq-labs/faculty-pipeline/internal/model"
)

// Snapshot is the saved state of one institution after one phase: the phase
// outcome plus the full roster as it stood when the phase finished.
type Snapshot struct {
	Institution string                `json:"institution"`
	Phase       model.PhaseID         `json:"phase"`
	Result      model.PhaseResult     `json:"result"`
	Roster      []model.FacultyRecord `json:"roster"`
	SavedAt     time.Time             `json:"saved_at"`
}

// Store defines checkpoint persistence. Implementations must make SavePhase
// atomic per (institution, phase): a crash mid-save leaves either the old
// snapshot or the new one, never a torn file or row.
type Store interface {
	// SavePhase upserts the snapshot for (institution, phase).
	SavePhase(ctx context.Context, snap Snapshot) error

	// LoadPhase returns the snapshot for (institution, phase), or nil if
	// none exists.
	LoadPhase(ctx context.Context, institution string, phase model.PhaseID) (*Snapshot, error)

	// Latest returns the snapshot of the furthest phase (in pipeline order)
	// saved for the institution, or nil if the institution has none.
	Latest(ctx context.Context, institution string) (*Snapshot, error)

	// Clear removes all snapshots for the institution.
	Clear(ctx context.Context, institution string) error

	// SaveFinal persists a completed run's results.
	SaveFinal(ctx context.Context, result *model.RunResult) error

	// LoadFinal returns the most recent completed run for the institution,
	// or nil if none exists.
	LoadFinal(ctx context.Context, institution string) (*model.RunResult, error)

	// ListRuns returns metadata for completed runs, newest first. A zero
	// limit returns all.
	ListRuns(ctx context.Context, limit int) ([]model.RunMetadata, error)

	Close() error
}

// phaseIndex returns a phase's position in pipeline order, or -1 for an
// unknown phase.
func phaseIndex(p model.PhaseID) int {
	for i, known := range model.Phases {
		if known == p {
			return i
		}
	}
	return -1
}

// latestSnapshot picks the snapshot with the furthest phase, breaking ties
// by save time.
func latestSnapshot(snaps []Snapshot) *Snapshot {
	var best *Snapshot
	for i := range snaps {
		s := &snaps[i]
		if best == nil {
			best = s
			continue
		}
		bi, si := phaseIndex(best.Phase), phaseIndex(s.Phase)
		if si > bi || (si == bi && s.SavedAt.After(best.SavedAt)) {
			best = s
		}
	}
	return best
}
