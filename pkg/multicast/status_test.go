// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package multicast

import (
	"testing"

	"github.com/dtn7/dtn7-mcast/pkg/sequence"
)

func TestStatusReceiver(t *testing.T) {
	sr := NewStatusReceiver(4)

	sr.CheckFullyAssociation(1)
	sr.DataUnavailable(2, sequence.NewRange(3, 4))
	sr.DataReceived(Sample{Remote: 3, Sequence: 5, Payload: []byte("hello")})
	sr.AckReceived(4, 6)

	tests := []struct {
		statusType StatusType
		remote     PeerId
	}{
		{PeerAssociated, 1},
		{DataUnavailable, 2},
		{SampleReceived, 3},
		{SampleAcked, 4},
	}

	for _, test := range tests {
		status := <-sr.Channel()
		if status.Type != test.statusType || status.Remote != test.remote {
			t.Fatalf("Expected %v from %v, got %v", test.statusType, test.remote, status)
		}

		switch status.Type {
		case DataUnavailable:
			if r := status.Message.(sequence.Range); r != sequence.NewRange(3, 4) {
				t.Fatalf("Unexpected range %v", r)
			}
		case SampleReceived:
			if s := status.Message.(Sample); string(s.Payload) != "hello" {
				t.Fatalf("Unexpected sample %v", s)
			}
		case SampleAcked:
			if seq := status.Message.(sequence.Number); seq != 6 {
				t.Fatalf("Unexpected sequence number %d", seq)
			}
		}
	}
}
