// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dtn7/dtn7-mcast/pkg/sequence"
)

// SampleAck is the payload of a KindSampleAck datagram, acknowledging Sequence to the addressed Peer.
type SampleAck struct {
	Peer     PeerId
	Sequence sequence.Number
}

// NewSampleAckDatagram creates a Datagram acknowledging a peer's sample, stamped like a control Datagram.
func NewSampleAckDatagram(source PeerId, seq, control sequence.Number, ack SampleAck, swapBytes bool) (d Datagram, err error) {
	d.Header = Header{
		Kind:     KindSampleAck,
		Source:   source,
		Sequence: seq,
		Control:  control,
	}
	if !swapBytes {
		d.Header.Flags |= FlagLittleEndian
	}

	var buf bytes.Buffer
	err = ack.Marshal(&buf, d.Header.Order())
	d.Payload = buf.Bytes()
	return
}

// SampleAck decodes a KindSampleAck Datagram's payload.
func (d Datagram) SampleAck() (ack SampleAck, err error) {
	if d.Header.Kind != KindSampleAck {
		err = fmt.Errorf("datagram of kind %v carries no sample ack", d.Header.Kind)
		return
	}
	if len(d.Payload) != 16 {
		err = fmt.Errorf("sample ack has %d bytes instead of 16", len(d.Payload))
		return
	}

	order := d.Header.Order()
	ack.Peer = PeerId(order.Uint64(d.Payload[:8]))
	ack.Sequence = sequence.Number(order.Uint64(d.Payload[8:]))
	return
}

func (sa SampleAck) Marshal(w io.Writer, order binary.ByteOrder) error {
	for _, field := range []interface{}{uint64(sa.Peer), int64(sa.Sequence)} {
		if err := binary.Write(w, order, field); err != nil {
			return err
		}
	}
	return nil
}

func (sa SampleAck) String() string {
	return fmt.Sprintf("SAMPLE_ACK(peer=%v, sequence=%d)", sa.Peer, sa.Sequence)
}
