// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package multicast

import (
	"fmt"

	"github.com/dtn7/dtn7-mcast/pkg/sequence"
)

// StatusType indicates the kind of a Status.
type StatusType uint

const (
	_ StatusType = iota

	// SampleReceived shows the reception of a sample. The Message's type must be a Sample.
	SampleReceived

	// PeerAssociated shows that a Session to the Remote peer was acknowledged. The Message is nil.
	PeerAssociated

	// DataUnavailable shows that samples were lost. The Message's type must be a sequence.Range.
	DataUnavailable

	// SampleAcked shows that the Remote peer acknowledged a sample. The Message's type must be a sequence.Number.
	SampleAcked
)

func (st StatusType) String() string {
	switch st {
	case SampleReceived:
		return "Sample Received"
	case PeerAssociated:
		return "Peer Associated"
	case DataUnavailable:
		return "Data Unavailable"
	case SampleAcked:
		return "Sample Acked"
	default:
		return "Unknown Type"
	}
}

// Status allows transmission of a DataLink's events via a channel.
type Status struct {
	Type    StatusType
	Remote  PeerId
	Message interface{}
}

func (s Status) String() string {
	return fmt.Sprintf("%v-Status from %v", s.Type, s.Remote)
}

// StatusReceiver is a Receiver which sends each event as a Status into a channel. This channel must be drained, a full
// channel blocks the DataLink.
type StatusReceiver struct {
	statusChan chan Status
}

// NewStatusReceiver with a buffered channel of the given size.
func NewStatusReceiver(buffer int) *StatusReceiver {
	return &StatusReceiver{statusChan: make(chan Status, buffer)}
}

// Channel of all Status values.
func (sr *StatusReceiver) Channel() <-chan Status {
	return sr.statusChan
}

func (sr *StatusReceiver) CheckFullyAssociation(remote PeerId) {
	sr.statusChan <- Status{Type: PeerAssociated, Remote: remote}
}

func (sr *StatusReceiver) DataUnavailable(remote PeerId, r sequence.Range) {
	sr.statusChan <- Status{Type: DataUnavailable, Remote: remote, Message: r}
}

func (sr *StatusReceiver) DataReceived(sample Sample) {
	sr.statusChan <- Status{Type: SampleReceived, Remote: sample.Remote, Message: sample}
}

func (sr *StatusReceiver) AckReceived(remote PeerId, seq sequence.Number) {
	sr.statusChan <- Status{Type: SampleAcked, Remote: remote, Message: seq}
}
