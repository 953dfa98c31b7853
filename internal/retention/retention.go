// Package retention runs the daily sweeper that reaps upload capability
// records older than the retention window, consumed or not, and their
// backing blobs, resolving spec.md §9's
// Open Question 3 (a cron-scheduled retention job). Its lifecycle shape —
// a *cron.Cron wrapped in Start/Stop — is grounded on the teacher's
// ai/internal/jobs/feedback_exporter.go, generalized from feedback export
// to retention and from log.Printf to zap.
package retention

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"peerprep/interview/internal/store"
)

// DefaultSchedule runs once a day at 03:00, matching the teacher's
// off-peak export schedule convention.
const DefaultSchedule = "0 3 * * *"

// Sweeper reaps upload capability records (and their blobs) older than the
// configured retention window.
type Sweeper struct {
	store    *store.Store
	window   time.Duration
	schedule string
	log      *zap.Logger
	cron     *cron.Cron
}

func New(st *store.Store, window time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{
		store:    st,
		window:   window,
		schedule: DefaultSchedule,
		log:      log,
		cron:     cron.New(),
	}
}

// Start schedules the sweep and returns immediately; the first sweep runs
// at the next schedule tick, not on Start itself.
func (s *Sweeper) Start() error {
	s.log.Info("starting retention sweeper", zap.String("schedule", s.schedule), zap.Duration("window", s.window))
	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Sweep(context.Background()); err != nil {
			s.log.Error("retention sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for any in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep runs one reap pass: find every upload capability record created
// before the retention cutoff, unlink its blob if present, then delete the
// record. Best-effort on blob removal — a missing file is not an error.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.window)
	expired, err := s.store.ExpiredUploadCapabilities(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	ids := make([]string, 0, len(expired))
	for _, rec := range expired {
		if rec.BlobRef != "" {
			if err := os.Remove(rec.BlobRef); err != nil && !os.IsNotExist(err) {
				s.log.Warn("failed to remove expired blob", zap.String("path", rec.BlobRef), zap.Error(err))
			}
		}
		ids = append(ids, rec.TokenID)
	}

	if err := s.store.DeleteUploadCapabilities(ctx, ids); err != nil {
		return err
	}
	s.log.Info("retention sweep complete", zap.Int("reaped", len(ids)))
	return nil
}
