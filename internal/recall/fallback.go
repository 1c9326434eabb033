package recall

import (
	"log/slog"

	"github.com/rcliao/rapport/internal/docs"
	"github.com/rcliao/rapport/internal/fsutil"
	"github.com/rcliao/rapport/internal/model"
)

// RecentLogs is how many dated significance logs the fallback reads.
const RecentLogs = 2

// DocsFallback reads decision moments from the newest significance logs and
// tasks and threads from the ledger. It touches only local files.
type DocsFallback struct {
	store *docs.Store
	log   *slog.Logger
}

func NewDocsFallback(store *docs.Store, log *slog.Logger) *DocsFallback {
	return &DocsFallback{store: store, log: log}
}

func (f *DocsFallback) Read() model.QueryContext {
	var qc model.QueryContext

	paths, err := f.store.RecentMomentLogs(RecentLogs)
	if err != nil {
		f.log.Warn("significance logs unreadable", "err", err)
	}
	for _, p := range paths {
		text, err := fsutil.ReadFileOrEmpty(p)
		if err != nil {
			f.log.Warn("significance log unreadable", "path", p, "err", err)
			continue
		}
		moments := docs.ParseMoments(text)
		// newest entries sit at the bottom of each log
		for i := len(moments) - 1; i >= 0; i-- {
			if moments[i].Category == model.CategoryDecision {
				qc.RecentDecisions = append(qc.RecentDecisions, moments[i].Quote)
			}
		}
	}

	ledger := f.store.ReadLedger()
	qc.RecentTasks = ledger.Recent
	qc.OpenThreads = ledger.OpenThreads
	return qc
}
