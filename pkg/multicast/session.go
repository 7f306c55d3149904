// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package multicast

import (
	"fmt"

	"github.com/dtn7/dtn7-mcast/pkg/multicast/msgs"
	"github.com/dtn7/dtn7-mcast/pkg/sequence"
)

// Session is a DataLink's protocol state for one remote peer.
//
// Start, Stop, Acked, Retain and Info might be called from any goroutine. HeaderReceived and ControlReceived are
// called from the Dispatcher's goroutine.
type Session interface {
	// RemotePeer of this Session.
	RemotePeer() PeerId

	// Active is true for the probing, publisher side.
	Active() bool

	// Acked is true after a successful handshake.
	Acked() bool

	// Start this Session in the active or passive role. On failure, every acquired resource is released.
	Start(active bool) error

	// Stop this Session and cancel its timers. Stop is idempotent.
	Stop()

	// HeaderReceived checks an inbound DATA datagram from the remote peer. False is returned for a sequence number
	// which must not be delivered, e.g., a duplicate.
	HeaderReceived(header msgs.Header) bool

	// ControlReceived handles a control message. Every control message received on the DataLink is passed to every
	// Session, each one filters by the message's source and addressed peer.
	ControlReceived(header msgs.Header, msg msgs.Message)

	// Retain a sent DATA datagram for later repair.
	Retain(seq sequence.Number, data []byte)

	// Info of this Session's current state.
	Info() SessionInfo

	fmt.Stringer
}

// SessionInfo is a snapshot of a Session, e.g., for a status API.
type SessionInfo struct {
	Remote     PeerId           `json:"remote"`
	Reliable   bool             `json:"reliable"`
	Active     bool             `json:"active"`
	Acked      bool             `json:"acked"`
	Cumulative sequence.Number  `json:"cumulative"`
	High       sequence.Number  `json:"high"`
	Missing    []sequence.Range `json:"missing,omitempty"`
	Retained   int              `json:"retained"`
}

func roleName(active bool) string {
	if active {
		return "active"
	}
	return "passive"
}
