// Package rapport wires the relationship components into one service used by
// the CLI and the daemon.
package rapport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rcliao/rapport/internal/checkin"
	"github.com/rcliao/rapport/internal/config"
	"github.com/rcliao/rapport/internal/delivery"
	"github.com/rcliao/rapport/internal/docs"
	"github.com/rcliao/rapport/internal/embedding"
	"github.com/rcliao/rapport/internal/gaps"
	"github.com/rcliao/rapport/internal/idle"
	"github.com/rcliao/rapport/internal/inject"
	"github.com/rcliao/rapport/internal/model"
	"github.com/rcliao/rapport/internal/onboarding"
	"github.com/rcliao/rapport/internal/recall"
	"github.com/rcliao/rapport/internal/scheduler"
	"github.com/rcliao/rapport/internal/search"
	"github.com/rcliao/rapport/internal/significance"
	"github.com/rcliao/rapport/internal/store"
	"github.com/rcliao/rapport/internal/watch"
)

// StateDBFile holds idle state when the sqlite backend is selected.
const StateDBFile = "state.db"

// Service is one relationship's fully wired core.
type Service struct {
	cfg *config.Config
	log *slog.Logger
	now func() time.Time

	idle      idle.Repository
	docs      *docs.Store
	index     *store.SQLiteStore
	extractor *recall.Extractor
	analyzer  *significance.Analyzer
	gaps      *gaps.Detector
	onboard   *onboarding.Flow
	deliverer delivery.Deliverer
	hook      *inject.Hook
	policy    checkin.Policy
}

// Open builds the service. now may be nil.
func Open(cfg *config.Config, log *slog.Logger, now func() time.Time) (*Service, error) {
	if now == nil {
		now = time.Now
	}
	s := &Service{
		cfg: cfg,
		log: log.With("relationship", cfg.RelationshipID),
		now: now,
		policy: checkin.Policy{
			LearningPeriod:    cfg.LearningPeriod(),
			LearningThreshold: cfg.LearningThreshold(),
			MatureThreshold:   cfg.MatureThreshold(),
		},
	}

	var err error
	switch cfg.IdleStateBackend {
	case "sqlite":
		s.idle, err = idle.NewSQLiteRepository(filepath.Join(cfg.Home, StateDBFile), s.log, now)
		if err != nil {
			return nil, fmt.Errorf("open idle state: %w", err)
		}
	default:
		s.idle = idle.NewFileRepository(filepath.Join(cfg.Home, "relationships"), s.log, now)
	}

	s.docs = docs.NewStore(cfg.RelationshipDir(), s.log, now)

	s.index, err = store.NewSQLiteStore(cfg.IndexPath())
	if err != nil {
		s.idle.Close()
		return nil, fmt.Errorf("open index: %w", err)
	}

	var searcher search.Searcher
	if cfg.UseSemanticSearch {
		emb, err := embedding.New(embedding.Options{
			Provider: cfg.EmbedProvider,
			Model:    cfg.EmbedModel,
			BaseURL:  os.Getenv("RAPPORT_EMBED_URL"),
			APIKey:   os.Getenv("OPENAI_API_KEY"),
			Timeout:  cfg.SearchTimeout(),
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		searcher = search.NewIndexSearcher(s.index, emb, s.log)
	}
	s.extractor = recall.New(searcher, recall.NewDocsFallback(s.docs, s.log), recall.Options{
		Scope:      cfg.RelationshipID,
		MaxResults: cfg.SearchMaxResults,
		Timeout:    cfg.SearchTimeout(),
	}, s.log)

	s.analyzer = significance.New(s.docs, nil, s.log, now)
	s.gaps = gaps.NewDetector(s.docs, nil, s.log)
	s.onboard = onboarding.New(cfg.RelationshipDir(), s.docs, nil, s.log, now)

	s.deliverer, err = delivery.New(delivery.Options{
		Kind:       cfg.Delivery,
		OutboxPath: filepath.Join(cfg.RelationshipDir(), delivery.OutboxFile),
		WebhookURL: cfg.WebhookURL,
		Timeout:    cfg.WebhookTimeout(),
	}, s.log)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.hook = inject.New(inject.Config{
		Enabled: cfg.AutoInject,
		Docs:    s.docs,
		Context: s.extractor,
		Window:  cfg.Window(),
		Budget:  cfg.SearchTimeout() + 2*time.Second,
		Now:     now,
		Log:     s.log,
	})
	return s, nil
}

// Close releases the index and state backends.
func (s *Service) Close() error {
	var errs []error
	if s.index != nil {
		errs = append(errs, s.index.Close())
	}
	if s.idle != nil {
		errs = append(errs, s.idle.Close())
	}
	if w, ok := s.deliverer.(*delivery.Webhook); ok {
		w.Wait()
	}
	return errors.Join(errs...)
}

// Config returns the configuration the service was opened with.
func (s *Service) Config() *config.Config { return s.cfg }

// Docs returns the living document store.
func (s *Service) Docs() *docs.Store { return s.docs }

// Index returns the transcript index.
func (s *Service) Index() *store.SQLiteStore { return s.index }

// EnsureDocs writes any missing living document from its template.
func (s *Service) EnsureDocs() error { return s.docs.EnsureTemplates() }

// Turn is one completed conversation turn.
type Turn struct {
	Role string
	Text string
}

// Touch records a completed turn: it advances the interaction clock and
// indexes the turn text when present. Indexing failures are logged only.
func (s *Service) Touch(ctx context.Context, turns ...Turn) (model.IdleState, error) {
	now := s.now()
	st, err := s.idle.Update(ctx, s.cfg.RelationshipID, func(st *model.IdleState) error {
		idle.MarkInteraction(st, now)
		return nil
	})
	if err != nil {
		return st, fmt.Errorf("record interaction: %w", err)
	}

	for _, t := range turns {
		if t.Text == "" {
			continue
		}
		if _, err := s.index.Put(ctx, store.PutParams{
			NS:      s.cfg.RelationshipID,
			Role:    t.Role,
			Content: t.Text,
			Tags:    []string{t.Role},
			At:      now,
		}); err != nil {
			s.log.Warn("turn not indexed", "role", t.Role, "err", err)
		}
	}
	return st, nil
}

// EndConversation runs the significance analyzer over a finished transcript
// and, when gap detection is on, refreshes the gap mirror.
func (s *Service) EndConversation(ctx context.Context, t model.Transcript) (significance.Report, []model.Gap, error) {
	if err := s.EnsureDocs(); err != nil {
		s.log.Error("living documents not initialized", "err", err)
	}
	report, err := s.analyzer.Run(ctx, t)
	var found []model.Gap
	if s.cfg.GapDetection {
		found = s.gaps.Refresh()
	}
	return report, found, err
}

// Gaps detects gaps now and mirrors them.
func (s *Service) Gaps() []model.Gap { return s.gaps.Refresh() }

// Onboarding returns the first-contact flow. It writes into the living
// documents, so they are created first.
func (s *Service) Onboarding() (*onboarding.Flow, error) {
	if err := s.EnsureDocs(); err != nil {
		return nil, err
	}
	return s.onboard, nil
}

// Inject returns the per-turn context block, or "".
func (s *Service) Inject(ctx context.Context) string { return s.hook.Build(ctx) }

// Reset restores idle defaults and rewrites the living documents from their
// templates. With purgeIndex the relationship's indexed turns go too.
func (s *Service) Reset(ctx context.Context, purgeIndex bool) error {
	if _, err := s.idle.Reset(ctx, s.cfg.RelationshipID); err != nil {
		return fmt.Errorf("reset idle state: %w", err)
	}
	if err := s.docs.Reset(); err != nil {
		return err
	}
	if err := s.onboard.Reset(); err != nil {
		return err
	}
	if purgeIndex {
		n, err := s.index.DeleteNS(ctx, s.cfg.RelationshipID)
		if err != nil {
			return fmt.Errorf("purge index: %w", err)
		}
		s.log.Info("index purged", "entries", n)
	}
	return nil
}

// Scheduler returns a check-in scheduler bound to this service.
func (s *Service) Scheduler() *scheduler.Scheduler {
	var gs scheduler.GapSource
	if s.cfg.GapDetection {
		gs = s.gaps
	}
	return scheduler.New(scheduler.Config{
		RelationshipID: s.cfg.RelationshipID,
		Interval:       s.cfg.CheckInterval(),
		Enabled:        s.cfg.ProactiveCheckIns,
		Policy:         s.policy,
		Window:         s.cfg.Window(),
		MinGap:         s.cfg.MinGap(),
		Destination:    s.cfg.DeliveryDestination,
		Idle:           s.idle,
		Context:        s.extractor,
		Gaps:           gs,
		Deliverer:      s.deliverer,
		Journal:        s.docs,
		Now:            s.now,
		Log:            s.log,
	})
}

// Daemon runs the scheduler, plus the document watcher when gap detection is
// on, until ctx is cancelled.
func (s *Service) Daemon(ctx context.Context) error {
	if err := s.EnsureDocs(); err != nil {
		return err
	}
	if !s.cfg.ProactiveCheckIns {
		s.log.Warn("proactive check-ins disabled; daemon will only watch documents")
	}

	sched := s.Scheduler()
	if s.cfg.ProactiveCheckIns {
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	if s.cfg.GapDetection {
		names := make([]string, 0, len(docs.Kinds))
		for _, k := range docs.Kinds {
			names = append(names, filepath.Base(s.docs.Path(k)))
		}
		w := watch.New(s.docs.Dir(), names, func() {
			found := s.gaps.Refresh()
			s.log.Info("gaps refreshed", "count", len(found))
		}, s.log)
		if err := w.Watch(ctx); err != nil {
			s.log.Warn("document watcher not started", "err", err)
		} else {
			defer w.Close()
		}
	}

	<-ctx.Done()
	return nil
}
