package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/card-service/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const digestTimeout = 30 * time.Second

// PendingCounter reports how many cards wait for an administrator.
type PendingCounter interface {
	PendingCounts(ctx context.Context) (map[models.CardStatus]int, error)
}

// DigestSender delivers the pending requests digest.
type DigestSender interface {
	SendPendingDigest(to string, pendingActive, pendingBlock int, at time.Time) error
}

// Scheduler runs the periodic administrator digest
type Scheduler struct {
	cron    *cron.Cron
	counter PendingCounter
	sender  DigestSender
	to      string
	log     *logrus.Logger
	now     func() time.Time
}

// New creates a scheduler that mails the digest to the given address.
func New(counter PendingCounter, sender DigestSender, to string, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		counter: counter,
		sender:  sender,
		to:      to,
		log:     log,
		now:     time.Now,
	}
}

// Start registers the digest job under a standard five field cron spec and
// starts the scheduler.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), digestTimeout)
		defer cancel()
		if err := s.SendDigest(ctx); err != nil {
			s.log.WithError(err).Error("Pending digest job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", spec, err)
	}
	s.cron.Start()
	s.log.Infof("Pending digest scheduled: %s", spec)
	return nil
}

// Stop halts the scheduler; the returned context is done once a running job finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// SendDigest mails the current pending counts. Nothing is sent when no card is pending.
func (s *Scheduler) SendDigest(ctx context.Context) error {
	counts, err := s.counter.PendingCounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending cards: %w", err)
	}
	active, block := counts[models.StatusPendingActive], counts[models.StatusPendingBlock]
	if active == 0 && block == 0 {
		s.log.Debug("No pending cards, digest skipped")
		return nil
	}
	return s.sender.SendPendingDigest(s.to, active, block, s.now())
}
