package tftp

import (
	"time"
)

// Timer is a pending callback handed out by a Scheduler.
type Timer interface {
	// Stop prevents the callback from firing.
	// It returns false if the callback has already fired or been stopped.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
// Sessions use it for retransmission, eviction after linger and the idle watchdog.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// clock is the Scheduler backed by the runtime timers.
type clock struct{}

func (clock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

const (
	// minRetransmitDelay floors the retransmission delay for short negotiated timeouts.
	minRetransmitDelay = 500 * time.Millisecond

	// DefaultLinger is how long a completed session stays around to answer late duplicates.
	DefaultLinger = 3 * time.Second

	// DefaultMaxRetries is the number of stale packets tolerated before a transfer is abandoned.
	DefaultMaxRetries = 3
)

// retransmitDelay returns how long a session waits before resending its last packet.
// It stays below the peer's own timeout so the resend lands before the peer gives up.
func retransmitDelay(timeout time.Duration) time.Duration {
	d := timeout - time.Second
	if d < minRetransmitDelay {
		d = minRetransmitDelay
	}
	return d
}
