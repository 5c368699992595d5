package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"sparehub.org/internal/obs"
)

// DefaultJanitorSchedule purges reset tokens once an hour.
const DefaultJanitorSchedule = "@hourly"

// Janitor periodically deletes reset tokens that can no longer be used.
type Janitor struct {
	store   Store
	cron    *cron.Cron
	now     func() time.Time
	timeout time.Duration
}

// NewJanitor schedules the purge on spec (standard five-field cron or a descriptor like @hourly).
func NewJanitor(store Store, spec string) (*Janitor, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	if spec == "" {
		spec = DefaultJanitorSchedule
	}
	j := &Janitor{
		store:   store,
		cron:    cron.New(),
		now:     time.Now,
		timeout: time.Minute,
	}
	if _, err := j.cron.AddFunc(spec, j.run); err != nil {
		return nil, fmt.Errorf("%w: janitor schedule %q: %v", ErrMisconfigured, spec, err)
	}
	return j, nil
}

// Start begins running scheduled purges in the background.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts scheduling; the returned context is done once a running purge finishes.
func (j *Janitor) Stop() context.Context { return j.cron.Stop() }

// RunOnce purges unusable reset tokens immediately.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	return j.store.PurgeResetTokens(ctx, j.now().UTC())
}

func (j *Janitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	n, err := j.RunOnce(ctx)
	if err != nil {
		obs.Logger().WithError(err).Error("reset token purge failed")
		return
	}
	if n > 0 {
		obs.Logger().WithFields(logrus.Fields{"purged": n}).Info("reset tokens purged")
	}
}
