package access

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Actuator drives the lock and the deny indicator.
type Actuator interface {
	// Open releases the lock, holds it for at most hold, then closes it again.
	Open(ctx context.Context, hold time.Duration) error
	// Deny shows the visible/audible rejection.
	Deny(ctx context.Context) error
}

// LogActuator only logs what a lock would do. It is used for bench setups
// and dry runs.
type LogActuator struct {
	logger *logrus.Logger
}

// NewLogActuator creates a logging actuator
func NewLogActuator(logger *logrus.Logger) *LogActuator {
	return &LogActuator{logger: logger}
}

// Open logs the door cycle and waits out the hold time.
func (a *LogActuator) Open(ctx context.Context, hold time.Duration) error {
	a.logger.WithField("hold", hold.String()).Info("Door open")
	if err := sleep(ctx, hold); err != nil {
		return err
	}
	a.logger.Info("Door closed")
	return nil
}

// Deny logs the rejection.
func (a *LogActuator) Deny(ctx context.Context) error {
	a.logger.Info("Access denied indicator")
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
