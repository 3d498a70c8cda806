package client

import (
	"context"
	"time"

	"satukanvas/internal/events"
	"satukanvas/pkg/logger"

	"github.com/cenkalti/backoff"
)

// Reconnector is the retry policy the state machine deliberately lacks. It
// watches for connections lost to an error and reconnects with exponential
// backoff. A user-initiated Disconnect is never undone.
type Reconnector struct {
	client *Client
	// NewBackOff builds the schedule for one outage. Defaults to exponential
	// backoff from 500ms capped at 30s, giving up after 5 minutes.
	NewBackOff func() backoff.BackOff
}

func NewReconnector(c *Client) *Reconnector {
	return &Reconnector{client: c, NewBackOff: defaultBackOff}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 5 * time.Minute
	return b
}

// Run blocks until ctx is done.
func (r *Reconnector) Run(ctx context.Context) {
	lost := make(chan struct{}, 1)
	unsubscribe := r.client.Events().Subscribe(func(e events.Event) {
		sc, ok := e.(events.ConnectionStateChanged)
		if !ok || sc.Err == nil {
			return
		}
		if sc.To == StateDisconnected.String() || sc.To == StateError.String() {
			select {
			case lost <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-lost:
			if err := r.Reconnect(ctx); err != nil && ctx.Err() == nil {
				logger.Sugar.Errorf("session %s: giving up reconnecting: %v", r.client.SessionID(), err)
			}
		}
	}
}

// Reconnect retries ConnectWait until it succeeds, the backoff gives up, or
// ctx ends.
func (r *Reconnector) Reconnect(ctx context.Context) error {
	newBackOff := r.NewBackOff
	if newBackOff == nil {
		newBackOff = defaultBackOff
	}
	b := backoff.WithContext(newBackOff(), ctx)

	operation := func() error {
		if r.client.State() == StateConnected {
			return nil
		}
		return r.client.ConnectWait(ctx)
	}
	notify := func(err error, next time.Duration) {
		logger.Sugar.Warnf("session %s: reconnect failed (%v), retrying in %s", r.client.SessionID(), err, next)
	}
	return backoff.RetryNotify(operation, b, notify)
}
