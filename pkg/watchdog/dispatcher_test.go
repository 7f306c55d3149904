// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package watchdog

import (
	"errors"
	"testing"
	"time"
)

func TestDispatcherFifo(t *testing.T) {
	d := NewDispatcher(128)
	defer func() { _ = d.Close() }()

	results := make(chan int, 100)
	for i := 0; i < 100; i++ {
		i := i
		if err := d.Post(func() { results <- i }); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 100; i++ {
		select {
		case r := <-results:
			if r != i {
				t.Fatalf("Command %d was executed as %d", r, i)
			}
		case <-time.After(time.Second):
			t.Fatalf("Command %d was not executed", i)
		}
	}
}

func TestDispatcherRecoversPanic(t *testing.T) {
	d := NewDispatcher(0)
	defer func() { _ = d.Close() }()

	done := make(chan struct{})
	if err := d.Post(func() { panic("oh no") }); err != nil {
		t.Fatal(err)
	}
	if err := d.Post(func() { close(done) }); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatcher stopped after a panicking command")
	}
}

func TestDispatcherTimer(t *testing.T) {
	d := NewDispatcher(0)
	defer func() { _ = d.Close() }()

	fired := make(chan string, 2)

	if err := d.Post(func() {
		if _, err := d.ScheduleTimer(func(time.Time) { fired <- "kept" }, 10*time.Millisecond); err != nil {
			t.Error(err)
		}

		id, err := d.ScheduleTimer(func(time.Time) { fired <- "cancelled" }, 10*time.Millisecond)
		if err != nil {
			t.Error(err)
		}
		if !d.CancelTimer(id) {
			t.Error("Cancelling a pending timer failed")
		}
		if d.CancelTimer(id) {
			t.Error("Cancelling a cancelled timer succeeded")
		}
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case f := <-fired:
		if f != "kept" {
			t.Fatalf("Wrong timer fired: %s", f)
		}
	case <-time.After(time.Second):
		t.Fatal("Timer did not fire")
	}

	select {
	case f := <-fired:
		t.Fatalf("Unexpected timer fired: %s", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(1)
	defer func() { _ = d.Close() }()

	block := make(chan struct{})
	started := make(chan struct{})
	if err := d.Post(func() { close(started); <-block }); err != nil {
		t.Fatal(err)
	}
	<-started

	if err := d.TryPost(func() {}); err != nil {
		t.Fatalf("First queued command failed: %v", err)
	}
	if err := d.TryPost(func() {}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Exceeding the queue returned %v", err)
	}

	close(block)
}

func TestDispatcherClosed(t *testing.T) {
	d := NewDispatcher(0)
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	if err := d.Post(func() {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Posting to a closed Dispatcher returned %v", err)
	}
	if err := d.TryPost(func() {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Trying to post to a closed Dispatcher returned %v", err)
	}
}
