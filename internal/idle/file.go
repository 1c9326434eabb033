package idle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rcliao/rapport/internal/fsutil"
	"github.com/rcliao/rapport/internal/model"
)

// StateFileName is the idle-state file inside a relationship directory.
const StateFileName = "idle-state.json"

// fileBackend keeps one JSON file per relationship under root/<id>/.
type fileBackend struct {
	root string
	log  *slog.Logger
	now  func() time.Time
}

// NewFileRepository stores state as root/<id>/idle-state.json.
func NewFileRepository(root string, log *slog.Logger, now func() time.Time) Repository {
	if now == nil {
		now = time.Now
	}
	return &guarded{b: &fileBackend{root: root, log: log, now: now}, now: now}
}

func (f *fileBackend) path(id string) string {
	return filepath.Join(f.root, id, StateFileName)
}

func (f *fileBackend) load(_ context.Context, id string) (model.IdleState, error) {
	b, err := os.ReadFile(f.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return model.DefaultIdleState(f.now()), nil
	}
	if err != nil {
		return model.IdleState{}, fmt.Errorf("read idle state: %w", err)
	}

	var s model.IdleState
	if err := json.Unmarshal(b, &s); err != nil {
		f.log.Warn("idle state unreadable, reinitializing", "path", f.path(id), "err", err)
		return model.DefaultIdleState(f.now()), nil
	}
	if s.RelationshipStart.IsZero() {
		f.log.Warn("idle state missing relationship start, reinitializing", "path", f.path(id))
		return model.DefaultIdleState(f.now()), nil
	}
	return s, nil
}

func (f *fileBackend) save(_ context.Context, id string, s model.IdleState) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode idle state: %w", err)
	}
	if err := fsutil.WriteFileAtomic(f.path(id), b); err != nil {
		return fmt.Errorf("write idle state: %w", err)
	}
	return nil
}
