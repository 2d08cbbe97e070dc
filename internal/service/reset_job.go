package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/port"
)

const resetTimeout = 5 * time.Minute

// DailyResetJob zeroes todayEarnings on a cron schedule.
type DailyResetJob struct {
	store  port.UserStore
	cron   *cron.Cron
	logger *zap.Logger
}

// NewDailyResetJob schedules the reset with a standard 5-field cron spec
// evaluated in loc.
func NewDailyResetJob(store port.UserStore, spec string, loc *time.Location, logger *zap.Logger) (*DailyResetJob, error) {
	j := &DailyResetJob{
		store:  store,
		cron:   cron.New(cron.WithLocation(loc)),
		logger: logger,
	}
	if _, err := j.cron.AddFunc(spec, j.runScheduled); err != nil {
		return nil, fmt.Errorf("schedule daily reset %q: %w", spec, err)
	}
	return j, nil
}

// Start runs the scheduler in its own goroutine.
func (j *DailyResetJob) Start() {
	j.cron.Start()
}

// Stop halts the scheduler and waits for a running reset to finish.
func (j *DailyResetJob) Stop() {
	<-j.cron.Stop().Done()
}

func (j *DailyResetJob) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()

	n, err := j.Run(ctx)
	if err != nil {
		j.logger.Error("daily reset failed", zap.Int("reset", n), zap.Error(err))
		return
	}
	j.logger.Info("daily reset done", zap.Int("reset", n))
}

// Run zeroes todayEarnings of every user that has any and returns how many
// records were written. It keeps going past individual failures.
func (j *DailyResetJob) Run(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "DailyResetJob.Run")
	defer span.End()

	users, err := j.store.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	var errs []error
	reset := 0
	for _, u := range users {
		if u.TodayEarnings == 0 {
			continue
		}
		_, err := j.store.UpdateUser(ctx, u.ID, func(rec *domain.User) error {
			if rec.TodayEarnings == 0 {
				return errNoChange
			}
			rec.TodayEarnings = 0
			return nil
		})
		switch {
		case err == nil:
			reset++
		case errors.Is(err, errNoChange):
		default:
			errs = append(errs, fmt.Errorf("user %s: %w", u.ID, err))
		}
	}
	return reset, errors.Join(errs...)
}
