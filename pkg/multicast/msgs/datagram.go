// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
	"github.com/howeyc/crc16"

	"github.com/dtn7/dtn7-mcast/pkg/sequence"
)

// Version of the datagram envelope.
const Version uint64 = 1

// FlagLittleEndian marks a datagram whose control payload is little endian encoded.
const FlagLittleEndian uint8 = 0x01

// Kind of a datagram.
type Kind uint8

const (
	// KindData carries an application sample and consumes a sequence number.
	KindData Kind = 0

	// KindSampleAck acknowledges a sample to its sender.
	KindSampleAck Kind = 1

	// KindControl carries a transport control submessage.
	KindControl Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "DATA"
	case KindSampleAck:
		return "SAMPLE_ACK"
	case KindControl:
		return "TRANSPORT_CONTROL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}

// ErrChecksum is returned for datagrams whose trailing CRC does not match.
var ErrChecksum = errors.New("datagram checksum mismatch")

var crc16table = crc16.MakeTable(crc16.CCITT)

// Header of each datagram.
//
// Sequence is the DATA sequence number. DATA datagrams consume it, all others carry the source's latest assigned one.
// Control is the sequence number of control and SAMPLE_ACK datagrams, it is zero for DATA datagrams.
type Header struct {
	Flags      uint8
	Kind       Kind
	Source     PeerId
	Sequence   sequence.Number
	Control    sequence.Number
	Submessage SubmessageID
}

// SwapBytes reports if this Header's payload is encoded in network byte order instead of the link's little endian
// default.
func (h Header) SwapBytes() bool {
	return h.Flags&FlagLittleEndian == 0
}

// Order of this Header's payload.
func (h Header) Order() binary.ByteOrder {
	return Order(!h.SwapBytes())
}

func (h Header) String() string {
	switch h.Kind {
	case KindData:
		return fmt.Sprintf("%v from %v at %d", h.Kind, h.Source, h.Sequence)
	case KindControl:
		return fmt.Sprintf("%v from %v at %d/%d (%v)", h.Kind, h.Source, h.Sequence, h.Control, h.Submessage)
	default:
		return fmt.Sprintf("%v from %v at %d/%d", h.Kind, h.Source, h.Sequence, h.Control)
	}
}

// Datagram is a Header and its opaque Payload, as sent to the multicast group.
type Datagram struct {
	Header  Header
	Payload []byte
}

// NewControlDatagram encodes a control Message into a Datagram, stamped with the latest DATA sequence number and its
// own control sequence number.
func NewControlDatagram(source PeerId, seq, control sequence.Number, msg Message, swapBytes bool) (d Datagram, err error) {
	d.Header = Header{
		Kind:       KindControl,
		Source:     source,
		Sequence:   seq,
		Control:    control,
		Submessage: msg.SubmessageID(),
	}
	if !swapBytes {
		d.Header.Flags |= FlagLittleEndian
	}

	d.Payload, err = EncodeMessage(msg, d.Header.Order())
	return
}

// Message decodes a control Datagram's payload.
func (d Datagram) Message() (Message, error) {
	if d.Header.Kind != KindControl {
		return nil, fmt.Errorf("datagram of kind %v carries no control message", d.Header.Kind)
	}
	return DecodeMessage(d.Header.Submessage, d.Payload, d.Header.Order())
}

func (d *Datagram) MarshalCbor(w io.Writer) error {
	if d.Header.Sequence < 0 || d.Header.Control < 0 {
		return fmt.Errorf("negative sequence number %d/%d", d.Header.Sequence, d.Header.Control)
	}

	if err := cboring.WriteArrayLength(8, w); err != nil {
		return err
	}

	fields := []uint64{
		Version,
		uint64(d.Header.Flags),
		uint64(d.Header.Kind),
		uint64(d.Header.Source),
		uint64(d.Header.Sequence),
		uint64(d.Header.Control),
		uint64(d.Header.Submessage),
	}
	for _, f := range fields {
		if err := cboring.WriteUInt(f, w); err != nil {
			return err
		}
	}

	return cboring.WriteByteString(d.Payload, w)
}

func (d *Datagram) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 8 {
		return fmt.Errorf("expected array with length 8, got %d", l)
	}

	var fields [7]uint64
	for i := range fields {
		if n, err := cboring.ReadUInt(r); err != nil {
			return err
		} else {
			fields[i] = n
		}
	}

	if fields[0] != Version {
		return fmt.Errorf("unsupported datagram version %d", fields[0])
	}
	if fields[1] > 0xff || fields[2] > 0xff || fields[6] > 0xff {
		return fmt.Errorf("header field overflow: flags %d, kind %d, submessage %d", fields[1], fields[2], fields[6])
	}
	if fields[4] > 1<<63-1 || fields[5] > 1<<63-1 {
		return fmt.Errorf("sequence number %d/%d overflows", fields[4], fields[5])
	}

	d.Header = Header{
		Flags:      uint8(fields[1]),
		Kind:       Kind(fields[2]),
		Source:     PeerId(fields[3]),
		Sequence:   sequence.Number(fields[4]),
		Control:    sequence.Number(fields[5]),
		Submessage: SubmessageID(fields[6]),
	}

	if payload, err := cboring.ReadByteString(r); err != nil {
		return err
	} else {
		d.Payload = payload
	}
	return nil
}

// Bytes serializes this Datagram into its CBOR envelope, followed by a big endian CRC-16 over the envelope.
func (d Datagram) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := cboring.Marshal(&d, &buf); err != nil {
		return nil, err
	}

	crc := make([]byte, 2)
	binary.BigEndian.PutUint16(crc, crc16.Checksum(buf.Bytes(), crc16table))
	buf.Write(crc)

	return buf.Bytes(), nil
}

// ParseDatagram from its serialized form, as created by Bytes.
func ParseDatagram(data []byte) (d Datagram, err error) {
	if len(data) < 3 {
		err = fmt.Errorf("datagram of %d bytes is too short", len(data))
		return
	}

	envelope, trailer := data[:len(data)-2], data[len(data)-2:]
	if crc := crc16.Checksum(envelope, crc16table); crc != binary.BigEndian.Uint16(trailer) {
		err = fmt.Errorf("%w: calculated %#04x, got %#04x", ErrChecksum, crc, binary.BigEndian.Uint16(trailer))
		return
	}

	buf := bytes.NewBuffer(envelope)
	if err = cboring.Unmarshal(&d, buf); err != nil {
		return
	} else if buf.Len() > 0 {
		err = fmt.Errorf("datagram has %d trailing bytes", buf.Len())
	}
	return
}
