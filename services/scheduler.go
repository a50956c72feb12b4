// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartCommitSweep runs CommitDue on a fixed interval so no delegated
// account stays uncommitted much longer than its commit frequency. Callers
// shut the returned scheduler down on exit.
func (s *SettlementService) StartCommitSweep(ctx context.Context, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			n, err := s.CommitDue(ctx)
			if err != nil {
				log.Printf("[Scheduler] commit sweep error: %v", err)
			}
			if n > 0 {
				log.Printf("✅ [Scheduler] committed %d delegated accounts", n)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}
