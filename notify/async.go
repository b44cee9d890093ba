package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultAsyncTimeout = 30 * time.Second

// Async delivers through next on a background goroutine with its own
// timeout. Notify never blocks on delivery and never fails; delivery errors
// are logged.
type Async struct {
	next    Notifier
	timeout time.Duration
	logger  logrus.FieldLogger
	wg      sync.WaitGroup
}

// NewAsync wraps next. A non-positive timeout selects thirty seconds.
func NewAsync(next Notifier, timeout time.Duration, logger logrus.FieldLogger) *Async {
	if timeout <= 0 {
		timeout = defaultAsyncTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Async{next: next, timeout: timeout, logger: logger}
}

func (a *Async) Notify(ctx context.Context, msg Message) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		if err := a.next.Notify(sendCtx, msg); err != nil {
			a.logger.WithError(err).WithField("kind", msg.Kind).Warn("notification delivery failed")
		}
	}()
	return nil
}

// Wait blocks until every in-flight delivery has finished.
func (a *Async) Wait() {
	a.wg.Wait()
}
