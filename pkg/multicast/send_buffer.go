// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package multicast

import (
	"fmt"
	"sync"

	"github.com/dtn7/dtn7-mcast/pkg/sequence"
)

// SendBuffer retains the most recently sent datagrams for repair. Its oldest entry is evicted first.
type SendBuffer struct {
	mutex    sync.Mutex
	capacity int
	entries  map[sequence.Number][]byte

	// ring holds count sequence numbers in insertion order, starting at head.
	ring  []sequence.Number
	head  int
	count int
}

// NewSendBuffer for up to capacity datagrams.
func NewSendBuffer(capacity int) (*SendBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("send buffer capacity %d is not positive", capacity)
	}

	return &SendBuffer{
		capacity: capacity,
		entries:  make(map[sequence.Number][]byte, capacity),
		ring:     make([]sequence.Number, capacity),
	}, nil
}

// Insert a datagram, evicting the oldest one if the buffer is full. Sequence numbers are expected to be increasing; a
// known one replaces its datagram.
func (sb *SendBuffer) Insert(seq sequence.Number, data []byte) {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()

	if _, exists := sb.entries[seq]; exists {
		sb.entries[seq] = data
		return
	}

	if sb.count == sb.capacity {
		delete(sb.entries, sb.ring[sb.head])
		sb.head = (sb.head + 1) % sb.capacity
		sb.count--
	}

	sb.entries[seq] = data
	sb.ring[(sb.head+sb.count)%sb.capacity] = seq
	sb.count++
}

// low and high of a non empty SendBuffer; the caller must hold the mutex.
func (sb *SendBuffer) low() sequence.Number {
	return sb.ring[sb.head]
}

func (sb *SendBuffer) high() sequence.Number {
	return sb.ring[(sb.head+sb.count-1)%sb.capacity]
}

// Empty is true if nothing is retained.
func (sb *SendBuffer) Empty() bool {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()

	return sb.count == 0
}

// Len of retained datagrams.
func (sb *SendBuffer) Len() int {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()

	return sb.count
}

// Low is the oldest retained sequence number, the repair floor. It is sequence.None for an empty SendBuffer.
func (sb *SendBuffer) Low() sequence.Number {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()

	if sb.count == 0 {
		return sequence.None
	}
	return sb.low()
}

// High is the newest retained sequence number or sequence.None for an empty SendBuffer.
func (sb *SendBuffer) High() sequence.Number {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()

	if sb.count == 0 {
		return sequence.None
	}
	return sb.high()
}

// Resend every retained datagram within r in ascending order. The parts of r which are not retained anymore are
// returned as unsatisfied. Numbers above the newest retained one were never sent and are ignored, unless the
// SendBuffer is empty and cannot satisfy anything.
func (sb *SendBuffer) Resend(r sequence.Range, send func(seq sequence.Number, data []byte)) (unsatisfied []sequence.Range) {
	type retained struct {
		seq  sequence.Number
		data []byte
	}
	var replay []retained

	sb.mutex.Lock()
	if sb.count == 0 {
		sb.mutex.Unlock()
		return []sequence.Range{r}
	}

	low, high := sb.low(), sb.high()
	if r.Low < low {
		unsatisfied = append(unsatisfied, sequence.NewRange(r.Low, minNumber(r.High, low.Previous())))
	}
	if window, ok := r.Intersect(sequence.NewRange(low, high)); ok {
		for seq := window.Low; seq <= window.High; seq++ {
			if data, exists := sb.entries[seq]; exists {
				replay = append(replay, retained{seq, data})
			} else {
				unsatisfied = append(unsatisfied, sequence.Single(seq))
			}
		}
	}
	sb.mutex.Unlock()

	for _, entry := range replay {
		send(entry.seq, entry.data)
	}

	return sequence.Normalize(unsatisfied)
}

// Clear releases all retained datagrams.
func (sb *SendBuffer) Clear() {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()

	sb.entries = make(map[sequence.Number][]byte)
	sb.head, sb.count = 0, 0
}

func minNumber(a, b sequence.Number) sequence.Number {
	if a < b {
		return a
	}
	return b
}
