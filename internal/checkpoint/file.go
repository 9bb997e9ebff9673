package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/riq-labs/faculty-pipeline/internal/model"
)

// FileStore keeps one JSON file per (institution, phase) under a directory.
// Saves write to a temp file in the same directory and rename into place,
// so a crash mid-write never leaves a torn checkpoint.
type FileStore struct {
	dir string
}

// NewFile creates the directory if needed and returns a FileStore.
func NewFile(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "checkpoint: mkdir %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// slug makes an institution name filesystem-safe.
func slug(institution string) string {
	s := slugRe.ReplaceAllString(strings.ToLower(institution), "_")
	return strings.Trim(s, "_")
}

func (f *FileStore) phasePath(institution string, phase model.PhaseID) string {
	return filepath.Join(f.dir, slug(institution)+"_"+string(phase)+".json")
}

func (f *FileStore) finalPath(institution string) string {
	return filepath.Join(f.dir, slug(institution)+"_final.json")
}

// writeAtomic publishes data at path via temp-file-then-rename.
func (f *FileStore) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(f.dir, ".ckpt-*")
	if err != nil {
		return eris.Wrap(err, "checkpoint: create temp")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrap(err, "checkpoint: write temp")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "checkpoint: close temp")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "checkpoint: publish %s", path)
	}
	return nil
}

func (f *FileStore) SavePhase(_ context.Context, snap Snapshot) error {
	if phaseIndex(snap.Phase) < 0 {
		return eris.Errorf("checkpoint: unknown phase %q", snap.Phase)
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return eris.Wrap(err, "checkpoint: marshal snapshot")
	}
	return f.writeAtomic(f.phasePath(snap.Institution, snap.Phase), data)
}

func (f *FileStore) LoadPhase(_ context.Context, institution string, phase model.PhaseID) (*Snapshot, error) {
	data, err := os.ReadFile(f.phasePath(institution, phase))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "checkpoint: read %s/%s", institution, phase)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, eris.Wrapf(err, "checkpoint: decode %s/%s", institution, phase)
	}
	return &snap, nil
}

func (f *FileStore) Latest(ctx context.Context, institution string) (*Snapshot, error) {
	var snaps []Snapshot
	for _, phase := range model.Phases {
		snap, err := f.LoadPhase(ctx, institution, phase)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			snaps = append(snaps, *snap)
		}
	}
	return latestSnapshot(snaps), nil
}

// Clear removes exactly this institution's files. Slugs prefix each other
// ("MIT", "MIT Media Lab"), so no directory-wide prefix matching.
func (f *FileStore) Clear(_ context.Context, institution string) error {
	paths := make([]string, 0, len(model.Phases)+1)
	for _, phase := range model.Phases {
		paths = append(paths, f.phasePath(institution, phase))
	}
	paths = append(paths, f.finalPath(institution))
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return eris.Wrapf(err, "checkpoint: remove %s", filepath.Base(path))
		}
	}
	return nil
}

func (f *FileStore) SaveFinal(_ context.Context, result *model.RunResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return eris.Wrap(err, "checkpoint: marshal result")
	}
	return f.writeAtomic(f.finalPath(result.Metadata.Institution), data)
}

func (f *FileStore) LoadFinal(_ context.Context, institution string) (*model.RunResult, error) {
	data, err := os.ReadFile(f.finalPath(institution))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "checkpoint: read final %s", institution)
	}
	var result model.RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, eris.Wrapf(err, "checkpoint: decode final %s", institution)
	}
	return &result, nil
}

func (f *FileStore) ListRuns(_ context.Context, limit int) ([]model.RunMetadata, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, eris.Wrap(err, "checkpoint: read dir")
	}
	var runs []model.RunMetadata
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), "_final.json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.dir, e.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "checkpoint: read %s", e.Name())
		}
		var result model.RunResult
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, eris.Wrapf(err, "checkpoint: decode %s", e.Name())
		}
		runs = append(runs, result.Metadata)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (f *FileStore) Close() error { return nil }
