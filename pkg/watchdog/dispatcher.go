// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package watchdog provides a single goroutine Dispatcher and recurring Watchdog timers executed on it.
package watchdog

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrClosed is returned for requests to a closed Dispatcher.
	ErrClosed = errors.New("dispatcher is closed")

	// ErrQueueFull is returned by TryPost if the command queue has no capacity left.
	ErrQueueFull = errors.New("dispatcher command queue is full")

	// ErrNoDispatcher is returned when a Watchdog should be scheduled without a Dispatcher.
	ErrNoDispatcher = errors.New("no dispatcher")
)

// DefaultQueueSize is the command queue capacity used for a non-positive queue size.
const DefaultQueueSize = 1024

// TimerID identifies a registered timer within its Dispatcher.
type TimerID uint64

type timerFire struct {
	id  TimerID
	now time.Time
}

type dispatcherTimer struct {
	timer   *time.Timer
	handler func(time.Time)
}

// Dispatcher is an event loop running every posted command and every timer callback on one goroutine.
//
// Commands can be posted from any goroutine into a bounded queue, which is drained in FIFO order. Timers must be
// registered and cancelled from within the Dispatcher's goroutine, e.g., by a posted command.
type Dispatcher struct {
	commands chan func()
	fired    chan timerFire

	// timers and nextID are owned by the loop goroutine.
	timers map[TimerID]*dispatcherTimer
	nextID TimerID

	stopSyn  chan struct{}
	stopAck  chan struct{}
	stopOnce sync.Once
}

// NewDispatcher creates and starts a Dispatcher with the given command queue capacity.
func NewDispatcher(queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	d := &Dispatcher{
		commands: make(chan func(), queueSize),
		fired:    make(chan timerFire, 64),

		timers: make(map[TimerID]*dispatcherTimer),

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}

	go d.loop()

	return d
}

func (d *Dispatcher) loop() {
	defer close(d.stopAck)

	for {
		select {
		case <-d.stopSyn:
			for id, t := range d.timers {
				t.timer.Stop()
				delete(d.timers, id)
			}
			return

		case cmd := <-d.commands:
			d.execute("command", func() { cmd() })

		case tf := <-d.fired:
			t, ok := d.timers[tf.id]
			if !ok {
				// cancelled after the time.Timer already fired
				continue
			}
			delete(d.timers, tf.id)

			d.execute("timer", func() { t.handler(tf.now) })
		}
	}
}

// execute a callback and recover from its panic; one failing callback must not stop the loop.
func (d *Dispatcher) execute(kind string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"dispatcher": d,
				"kind":       kind,
				"panic":      r,
			}).Error("Dispatcher recovered from a panicking callback")
		}
	}()

	f()
}

func (d *Dispatcher) isClosed() bool {
	select {
	case <-d.stopSyn:
		return true
	default:
		return false
	}
}

// Post a command to be executed within the Dispatcher's goroutine. This method blocks while the queue is full and
// must not be called from within the Dispatcher's goroutine; use TryPost there.
func (d *Dispatcher) Post(cmd func()) error {
	if d.isClosed() {
		return ErrClosed
	}

	select {
	case d.commands <- cmd:
		return nil
	case <-d.stopSyn:
		return ErrClosed
	}
}

// TryPost a command without blocking. ErrQueueFull is returned if the queue has no capacity left.
func (d *Dispatcher) TryPost(cmd func()) error {
	if d.isClosed() {
		return ErrClosed
	}

	select {
	case d.commands <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// ScheduleTimer registers a one-shot timer, calling handler after delay within the Dispatcher's goroutine. This method
// must only be called from within the Dispatcher's goroutine.
func (d *Dispatcher) ScheduleTimer(handler func(now time.Time), delay time.Duration) (TimerID, error) {
	if d.isClosed() {
		return 0, ErrClosed
	}
	if handler == nil {
		return 0, fmt.Errorf("timer handler is nil")
	}
	if delay < 0 {
		delay = 0
	}

	d.nextID++
	id := d.nextID

	d.timers[id] = &dispatcherTimer{
		handler: handler,
		timer: time.AfterFunc(delay, func() {
			select {
			case d.fired <- timerFire{id: id, now: time.Now()}:
			case <-d.stopSyn:
			}
		}),
	}

	return id, nil
}

// CancelTimer removes a registered timer; false is returned for an unknown or already fired timer. This method must
// only be called from within the Dispatcher's goroutine.
func (d *Dispatcher) CancelTimer(id TimerID) bool {
	t, ok := d.timers[id]
	if !ok {
		return false
	}

	t.timer.Stop()
	delete(d.timers, id)
	return true
}

// Close this Dispatcher. Pending commands and timers are discarded. Close might be called multiple times, but not
// from within the Dispatcher's goroutine.
func (d *Dispatcher) Close() error {
	d.stopOnce.Do(func() {
		close(d.stopSyn)
	})
	<-d.stopAck

	return nil
}

func (d *Dispatcher) String() string {
	return fmt.Sprintf("dispatcher(%p)", d)
}
