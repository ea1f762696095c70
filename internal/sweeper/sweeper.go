// Package sweeper runs the deadline sweep on a cron schedule. The sweep
// itself is idempotent, so overlapping with the on-load sweep in the service
// layer is harmless.
package sweeper

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"bonus-tracker-api/internal/service"
)

// Sweeper schedules periodic deadline sweeps across all users.
type Sweeper struct {
	cron    *cron.Cron
	service *service.Service
	ctx     context.Context
}

// New creates a Sweeper bound to the given service.
func New(ctx context.Context, svc *service.Service) *Sweeper {
	return &Sweeper{
		cron:    cron.New(cron.WithSeconds()),
		service: svc,
		ctx:     ctx,
	}
}

// Register adds the sweep task under the given six-field cron spec.
func (s *Sweeper) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.runSweep); err != nil {
		return fmt.Errorf("register deadline sweep: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Sweeper) Start() {
	s.cron.Start()
	log.Println("[INFO] deadline sweeper started")
}

// Stop stops the cron scheduler gracefully.
func (s *Sweeper) Stop() {
	s.cron.Stop()
	log.Println("[INFO] deadline sweeper stopped")
}

// RunNow executes the sweep immediately (manual trigger / run-on-start).
func (s *Sweeper) RunNow() {
	s.runSweep()
}

func (s *Sweeper) runSweep() {
	log.Println("[INFO] running deadline sweep")
	expired, err := s.service.SweepAll(s.ctx, time.Now().UTC())
	if err != nil {
		log.Printf("[ERROR] deadline sweep: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("[INFO] deadline sweep expired %d bonuses", expired)
	}
}
