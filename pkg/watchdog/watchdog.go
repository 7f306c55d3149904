// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package watchdog

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Handler supplies a Watchdog's intervals and callbacks. All methods are called from the Dispatcher's goroutine.
type Handler interface {
	// NextInterval until the next OnInterval call. It might apply some kind of backoff.
	NextInterval() time.Duration

	// OnInterval is called repeatedly until the Watchdog is cancelled or timed out.
	OnInterval()

	// NextTimeout is the overall duration, measured from the first scheduling, after which OnTimeout is called once
	// instead of OnInterval. A zero duration disables the timeout.
	NextTimeout() time.Duration

	// OnTimeout is called once after NextTimeout has elapsed. Afterwards, the Watchdog cancels itself.
	OnTimeout()
}

// Watchdog executes a Handler's OnInterval repeatedly on a Dispatcher and optionally an OnTimeout once.
//
// Schedule, ScheduleNow and Cancel are safe to be called from any goroutine. Those requests are queued into the
// Dispatcher and take effect in FIFO order. After Cancel returns, no further callback will be started; a callback
// already running on the Dispatcher finishes.
type Watchdog struct {
	name    string
	handler Handler

	// mutex protects dispatcher and generation. Each scheduling or cancellation increments the generation; commands
	// and timers of a previous generation are ignored.
	mutex      sync.Mutex
	dispatcher *Dispatcher
	generation uint64

	// timer, scheduled and epoch are owned by the Dispatcher's goroutine.
	timer     TimerID
	scheduled bool
	epoch     time.Time
}

// New Watchdog for a Handler. The name is used for logging.
func New(name string, handler Handler) *Watchdog {
	return &Watchdog{
		name:    name,
		handler: handler,
	}
}

// Schedule the first OnInterval after one NextInterval.
func (w *Watchdog) Schedule(d *Dispatcher) error {
	return w.schedule(d, false)
}

// ScheduleNow results in an immediate first OnInterval call.
func (w *Watchdog) ScheduleNow(d *Dispatcher) error {
	return w.schedule(d, true)
}

func (w *Watchdog) schedule(d *Dispatcher, immediately bool) error {
	if d == nil {
		return ErrNoDispatcher
	}

	w.mutex.Lock()
	w.dispatcher = d
	w.generation++
	gen := w.generation
	w.mutex.Unlock()

	if err := d.TryPost(func() { w.register(gen, immediately) }); err != nil {
		w.logger().WithError(err).Warn("Watchdog failed to request scheduling")
		return err
	}
	return nil
}

// Cancel all further executions. Cancel is idempotent.
func (w *Watchdog) Cancel() {
	w.mutex.Lock()
	d := w.dispatcher
	if d == nil {
		w.mutex.Unlock()
		return
	}
	w.generation++
	gen := w.generation
	w.mutex.Unlock()

	if err := d.TryPost(func() { w.cancelTimer(gen) }); err != nil {
		// The generation is already outdated, a still pending timer will be ignored.
		w.logger().WithError(err).Debug("Watchdog failed to request timer cancellation")
	}
}

// isCurrent checks if gen is still this Watchdog's generation.
func (w *Watchdog) isCurrent(gen uint64) bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	return w.generation == gen
}

func (w *Watchdog) currentDispatcher() *Dispatcher {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	return w.dispatcher
}

// register a timer within the Dispatcher's goroutine.
func (w *Watchdog) register(gen uint64, immediately bool) {
	if !w.isCurrent(gen) {
		return
	}

	d := w.currentDispatcher()
	if w.scheduled {
		d.CancelTimer(w.timer)
		w.scheduled = false
	}

	if w.epoch.IsZero() {
		w.epoch = time.Now()
	}

	var delay time.Duration
	if !immediately {
		delay = w.handler.NextInterval()
	}

	w.registerTimer(d, gen, delay)
}

func (w *Watchdog) registerTimer(d *Dispatcher, gen uint64, delay time.Duration) {
	id, err := d.ScheduleTimer(func(now time.Time) { w.handleTimeout(gen, now) }, delay)
	if err != nil {
		w.logger().WithError(err).Warn("Watchdog failed to register timer, no further rescheduling")
		return
	}

	w.timer = id
	w.scheduled = true
}

// cancelTimer within the Dispatcher's goroutine.
func (w *Watchdog) cancelTimer(gen uint64) {
	if !w.isCurrent(gen) {
		return
	}

	if w.scheduled {
		w.currentDispatcher().CancelTimer(w.timer)
		w.scheduled = false
	}
	w.epoch = time.Time{}
}

// handleTimeout is the timer callback within the Dispatcher's goroutine.
func (w *Watchdog) handleTimeout(gen uint64, now time.Time) {
	if !w.isCurrent(gen) {
		return
	}
	w.scheduled = false

	if timeout := w.handler.NextTimeout(); timeout > 0 && now.Sub(w.epoch) > timeout {
		w.logger().WithFields(log.Fields{
			"epoch":   w.epoch,
			"timeout": timeout,
		}).Debug("Watchdog timed out")

		w.mutex.Lock()
		w.generation++
		w.mutex.Unlock()
		w.epoch = time.Time{}

		w.handler.OnTimeout()
		return
	}

	w.handler.OnInterval()

	// OnInterval might have cancelled or rescheduled this Watchdog.
	if !w.isCurrent(gen) {
		return
	}

	w.registerTimer(w.currentDispatcher(), gen, w.handler.NextInterval())
}

func (w *Watchdog) logger() *log.Entry {
	return log.WithField("watchdog", w.name)
}

func (w *Watchdog) String() string {
	return w.name
}
