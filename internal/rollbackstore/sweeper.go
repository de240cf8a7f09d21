package rollbackstore

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper runs Store.Cleanup on a schedule. Grounded on
// coordinator/phases.go's ticker-driven lifecycle loop, but implemented with
// robfig/cron/v3 instead of a bare time.Ticker so the interval can be
// expressed as a schedule rather than only a fixed period.
type Sweeper struct {
	cron  *cron.Cron
	store *Store
	log   *logrus.Entry
}

// NewSweeper creates a sweeper that runs Store.Cleanup every interval. The
// caller must call Start to begin sweeping and Stop to end it.
func NewSweeper(store *Store, interval time.Duration, log *logrus.Entry) *Sweeper {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger()).WithField("component", "rollbackstore-sweeper")
	}
	spec := fmt.Sprintf("@every %ds", maxInt(int(interval.Seconds()), 1))
	c := cron.New()
	_, _ = c.AddFunc(spec, func() {
		result := store.Cleanup()
		log.WithField("removed_points", result.RemovedPoints).
			WithField("removed_operations", result.RemovedOperations).
			Debug("rollback store cleanup sweep completed")
	})
	return &Sweeper{cron: c, store: store, log: log}
}

// Start begins the periodic sweep in a background goroutine managed by cron.
func (sw *Sweeper) Start() { sw.cron.Start() }

// Stop halts the sweeper, waiting for any in-flight sweep to finish.
func (sw *Sweeper) Stop() { <-sw.cron.Stop().Done() }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
