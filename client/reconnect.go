package client

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ConnState is the reconnect manager's state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateAuthenticated
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

const (
	defaultBackoff        = 5 * time.Second
	defaultAuthRejections = 3
)

// Dialer establishes one authenticated session; the channel signals
// when it ends. Transport implements it.
type Dialer interface {
	Connect(ctx context.Context) (<-chan error, error)
}

// ReconnectConfig tunes the Reconnector.
type ReconnectConfig struct {
	// Backoff is the fixed delay between attempts (default 5s).
	Backoff time.Duration
	// MaxAuthRejections ends the loop after that many consecutive
	// credential rejections (default 3).
	MaxAuthRejections int
	// OnStateChange is invoked on every transition.
	OnStateChange func(ConnState)
	// OnConnected runs after each successful handshake, before events
	// flow; callers use it to reload history from the durable store.
	OnConnected func()
}

// Reconnector drives the Disconnected -> Connecting -> Authenticated
// session lifecycle, re-running the credential handshake on every
// attempt. The transport never replays missed pushes, so OnConnected
// is the reload hook.
type Reconnector struct {
	dialer Dialer
	cfg    ReconnectConfig
	state  atomic.Int32
}

// NewReconnector builds a Reconnector around the dialer.
func NewReconnector(dialer Dialer, cfg ReconnectConfig) *Reconnector {
	if cfg.Backoff == 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.MaxAuthRejections == 0 {
		cfg.MaxAuthRejections = defaultAuthRejections
	}
	return &Reconnector{dialer: dialer, cfg: cfg}
}

// State reports the current connection state.
func (r *Reconnector) State() ConnState {
	return ConnState(r.state.Load())
}

// Run loops until ctx is cancelled or the credential is rejected
// MaxAuthRejections times in a row. Transient failures wait out the
// backoff and retry.
func (r *Reconnector) Run(ctx context.Context) error {
	authRejections := 0
	for {
		r.setState(StateConnecting)
		done, err := r.dialer.Connect(ctx)
		if err != nil {
			r.setState(StateDisconnected)
			if errors.Is(err, ErrAuthRejected) {
				authRejections++
				if authRejections >= r.cfg.MaxAuthRejections {
					logrus.WithError(err).Error("credential rejected repeatedly, giving up")
					return err
				}
			} else {
				authRejections = 0
			}
			if err := r.wait(ctx); err != nil {
				return err
			}
			continue
		}

		authRejections = 0
		r.setState(StateAuthenticated)
		if r.cfg.OnConnected != nil {
			r.cfg.OnConnected()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			logrus.WithError(err).Info("session ended, reconnecting")
			r.setState(StateDisconnected)
		}

		if err := r.wait(ctx); err != nil {
			return err
		}
	}
}

func (r *Reconnector) wait(ctx context.Context) error {
	timer := time.NewTimer(r.cfg.Backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Reconnector) setState(state ConnState) {
	if ConnState(r.state.Swap(int32(state))) == state {
		return
	}
	if r.cfg.OnStateChange != nil {
		r.cfg.OnStateChange(state)
	}
}
