package access

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrWriteFailed is returned when the lock controller accepts fewer bytes than sent.
var ErrWriteFailed = errors.New("failed to write to lock controller")

// Lock controller commands, one per line
const (
	CommandOpen  = "OPEN"
	CommandClose = "CLOSE"
	CommandDeny  = "DENY"
)

// SerialActuator sends line commands to a lock controller on a serial port:
// "OPEN <ms>", "CLOSE" and "DENY".
type SerialActuator struct {
	port   io.Writer
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewSerialActuator creates an actuator writing to port
func NewSerialActuator(port io.Writer, logger *logrus.Logger) *SerialActuator {
	return &SerialActuator{port: port, logger: logger}
}

// Open sends OPEN, waits out the hold time and always sends CLOSE, even when
// ctx is cancelled mid-hold.
func (a *SerialActuator) Open(ctx context.Context, hold time.Duration) error {
	if err := a.send(fmt.Sprintf("%s %d", CommandOpen, hold.Milliseconds())); err != nil {
		return fmt.Errorf("failed to open lock: %w", err)
	}

	waitErr := sleep(ctx, hold)

	if err := a.send(CommandClose); err != nil {
		return fmt.Errorf("failed to close lock: %w", err)
	}
	return waitErr
}

// Deny sends DENY.
func (a *SerialActuator) Deny(ctx context.Context) error {
	if err := a.send(CommandDeny); err != nil {
		return fmt.Errorf("failed to signal deny: %w", err)
	}
	return nil
}

func (a *SerialActuator) send(command string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := a.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}

	a.logger.WithField("command", strings.TrimSpace(command)).Debug("Lock controller command sent")
	return nil
}
