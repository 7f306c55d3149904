// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package multicast

import (
	"fmt"

	"github.com/dtn7/dtn7-mcast/pkg/multicast/msgs"
	"github.com/dtn7/dtn7-mcast/pkg/sequence"
)

// PeerId identifies a participant on the multicast group.
type PeerId = msgs.PeerId

// Sample is an application payload received from a remote peer.
type Sample struct {
	Remote   PeerId
	Sequence sequence.Number
	Payload  []byte
}

func (s Sample) String() string {
	return fmt.Sprintf("Sample(%v, %d, %d bytes)", s.Remote, s.Sequence, len(s.Payload))
}

// Receiver is the upper layer of a DataLink. Its methods might be called concurrently, mostly from the Dispatcher's
// goroutine, and should return quickly.
type Receiver interface {
	// CheckFullyAssociation is called after a Session for this remote peer was acknowledged.
	CheckFullyAssociation(remote PeerId)

	// DataUnavailable reports a range of the remote peer's samples as permanently lost.
	DataUnavailable(remote PeerId, r sequence.Range)

	// DataReceived delivers a Sample, at most once per sequence number for reliable Sessions.
	DataReceived(sample Sample)

	// AckReceived signals that a remote peer acknowledged one of this peer's samples.
	AckReceived(remote PeerId, seq sequence.Number)
}

// nopReceiver discards everything.
type nopReceiver struct{}

func (nopReceiver) CheckFullyAssociation(PeerId) {}
func (nopReceiver) DataUnavailable(PeerId, sequence.Range) {}
func (nopReceiver) DataReceived(Sample) {}
func (nopReceiver) AckReceived(PeerId, sequence.Number) {}
