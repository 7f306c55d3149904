// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dtn7/dtn7-mcast/pkg/sequence"
)

// maxNakRanges bounds the amount of ranges within one Nak to reject garbage length fields.
const maxNakRanges = 1 << 16

// Nak requests the repair of missing ranges from the addressed Peer.
//
// Wire format: Peer, count as uint32, followed by count pairs of low and high sequence numbers.
type Nak struct {
	Peer   PeerId
	Ranges []sequence.Range
}

// NewNak for the addressed peer and its missing ranges.
func NewNak(peer PeerId, ranges []sequence.Range) *Nak {
	return &Nak{Peer: peer, Ranges: ranges}
}

func (n Nak) SubmessageID() SubmessageID {
	return NAK
}

func (n Nak) Marshal(w io.Writer, order binary.ByteOrder) error {
	var fields = []interface{}{uint64(n.Peer), uint32(len(n.Ranges))}
	for _, r := range n.Ranges {
		fields = append(fields, int64(r.Low), int64(r.High))
	}

	for _, field := range fields {
		if err := binary.Write(w, order, field); err != nil {
			return err
		}
	}
	return nil
}

func (n *Nak) Unmarshal(r io.Reader, order binary.ByteOrder) error {
	var count uint32
	if err := binary.Read(r, order, (*uint64)(&n.Peer)); err != nil {
		return err
	} else if err := binary.Read(r, order, &count); err != nil {
		return err
	} else if count > maxNakRanges {
		return fmt.Errorf("NAK announces %d ranges, exceeding %d", count, maxNakRanges)
	}

	n.Ranges = make([]sequence.Range, count)
	for i := range n.Ranges {
		var pair [2]int64
		if err := binary.Read(r, order, &pair); err != nil {
			return fmt.Errorf("reading range %d failed: %w", i, err)
		}
		n.Ranges[i] = sequence.Range{Low: sequence.Number(pair[0]), High: sequence.Number(pair[1])}
	}
	return nil
}

func (n Nak) String() string {
	return fmt.Sprintf("NAK(peer=%v, ranges=%v)", n.Peer, n.Ranges)
}

// NakAck announces that nothing below Low can be repaired anymore.
type NakAck struct {
	Low sequence.Number
}

// NewNakAck for a new low-water mark.
func NewNakAck(low sequence.Number) *NakAck {
	return &NakAck{Low: low}
}

func (na NakAck) SubmessageID() SubmessageID {
	return NAKACK
}

func (na NakAck) Marshal(w io.Writer, order binary.ByteOrder) error {
	return binary.Write(w, order, int64(na.Low))
}

func (na *NakAck) Unmarshal(r io.Reader, order binary.ByteOrder) error {
	return binary.Read(r, order, (*int64)(&na.Low))
}

func (na NakAck) String() string {
	return fmt.Sprintf("NAKACK(low=%d)", na.Low)
}
