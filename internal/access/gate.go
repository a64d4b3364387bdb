package access

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Default actuation timing
const (
	DefaultOpenDuration = 3 * time.Second
	DefaultSettleDelay  = 500 * time.Millisecond
)

// Gate turns a decoded unique id into a verdict and drives the actuator.
type Gate struct {
	allow    *AllowList
	actuator Actuator
	openFor  time.Duration
	settle   time.Duration
	logger   *logrus.Logger
}

// NewGate creates a gate over an allow list and an actuator
func NewGate(allow *AllowList, actuator Actuator, openFor, settle time.Duration, logger *logrus.Logger) *Gate {
	return &Gate{
		allow:    allow,
		actuator: actuator,
		openFor:  openFor,
		settle:   settle,
		logger:   logger,
	}
}

// Handle decides on uniqueID, runs the matching actuator action and then
// waits the settle delay before the next capture cycle may begin. The
// verdict is valid even when the actuator fails.
func (g *Gate) Handle(ctx context.Context, uniqueID uint16) (Verdict, error) {
	verdict := g.allow.Decide(uniqueID)
	g.logger.WithFields(logrus.Fields{
		"unique_id": uniqueID,
		"verdict":   verdict.String(),
	}).Debug("Access decision")

	var err error
	if verdict == Accept {
		err = g.actuator.Open(ctx, g.openFor)
	} else {
		err = g.actuator.Deny(ctx)
	}
	if err != nil {
		return verdict, fmt.Errorf("actuator %s failed: %w", verdict, err)
	}

	if err := sleep(ctx, g.settle); err != nil {
		return verdict, err
	}
	return verdict, nil
}
