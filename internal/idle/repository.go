// Package idle persists per-relationship idle state and derives the check-in mode.
package idle

import (
	"context"
	"sync"
	"time"

	"github.com/rcliao/rapport/internal/model"
)

// Repository loads and saves idle state keyed by relationship id.
type Repository interface {
	// Load returns the stored state, or defaults when none exists or the
	// record is unreadable. It only fails on I/O it cannot recover from.
	Load(ctx context.Context, id string) (model.IdleState, error)

	// Save replaces the stored state atomically.
	Save(ctx context.Context, id string, s model.IdleState) error

	// Update runs fn on the current state and saves the result. Concurrent
	// Update calls on one repository are serialized, so the scheduler and
	// the turn hook never interleave their read-then-write sequences.
	// When fn returns an error nothing is saved.
	Update(ctx context.Context, id string, fn func(*model.IdleState) error) (model.IdleState, error)

	// Reset replaces the stored state with defaults.
	Reset(ctx context.Context, id string) (model.IdleState, error)

	// Close releases resources held by the repository.
	Close() error
}

// backend is the unlocked storage a repository wraps.
type backend interface {
	load(ctx context.Context, id string) (model.IdleState, error)
	save(ctx context.Context, id string, s model.IdleState) error
}

// guarded serializes access to a backend with a single process-local lock.
type guarded struct {
	mu  sync.Mutex
	b   backend
	now func() time.Time
}

func (g *guarded) Load(ctx context.Context, id string) (model.IdleState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.b.load(ctx, id)
}

func (g *guarded) Save(ctx context.Context, id string, s model.IdleState) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.b.save(ctx, id, normalize(s))
}

func (g *guarded) Update(ctx context.Context, id string, fn func(*model.IdleState) error) (model.IdleState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, err := g.b.load(ctx, id)
	if err != nil {
		return s, err
	}
	if err := fn(&s); err != nil {
		return s, err
	}
	s = normalize(s)
	if err := g.b.save(ctx, id, s); err != nil {
		return s, err
	}
	return s, nil
}

func (g *guarded) Reset(ctx context.Context, id string) (model.IdleState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := model.DefaultIdleState(g.now())
	return s, g.b.save(ctx, id, s)
}

func normalize(s model.IdleState) model.IdleState {
	s.LastInteraction = model.NormalizeTime(s.LastInteraction)
	s.LastCheckIn = model.NormalizeTime(s.LastCheckIn)
	s.RelationshipStart = model.NormalizeTime(s.RelationshipStart)
	if s.CheckInCount < 0 {
		s.CheckInCount = 0
	}
	return s
}

// MarkInteraction records a completed turn at now. The relationship start is
// only set when missing and never moves afterwards.
func MarkInteraction(s *model.IdleState, now time.Time) {
	now = model.NormalizeTime(now)
	if s.RelationshipStart.IsZero() {
		s.RelationshipStart = now
	}
	if now.After(s.LastInteraction) {
		s.LastInteraction = now
	}
}

// MarkCheckIn records a dispatched check-in at now, remembering the gap key
// used as its focus, if any.
func MarkCheckIn(s *model.IdleState, now time.Time, gapKey string) {
	s.LastCheckIn = model.NormalizeTime(now)
	s.CheckInCount++
	if gapKey != "" && !s.Asked(gapKey) {
		s.QuestionsAsked = append(s.QuestionsAsked, gapKey)
	}
}

func (g *guarded) Close() error { return nil }
