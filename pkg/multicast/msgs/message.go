// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package msgs contains the datagram envelope and the control submessages of the reliable multicast session protocol.
package msgs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"reflect"
)

// SubmessageID identifies a transport control submessage.
type SubmessageID uint8

const (
	// SYN is sent by an active session to start the handshake with its remote peer.
	SYN SubmessageID = 0x00

	// SYNACK is the passive session's reply to a SYN.
	SYNACK SubmessageID = 0x01

	// NAK requests the repair of missing sequence ranges.
	NAK SubmessageID = 0x02

	// NAKACK announces a sender's new low-water mark; everything below cannot be repaired.
	NAKACK SubmessageID = 0x03
)

func (id SubmessageID) String() string {
	switch id {
	case SYN:
		return "SYN"
	case SYNACK:
		return "SYNACK"
	case NAK:
		return "NAK"
	case NAKACK:
		return "NAKACK"
	default:
		return fmt.Sprintf("UNKNOWN(%#02x)", uint8(id))
	}
}

// ErrUnknownSubmessage is returned for unregistered submessage IDs.
var ErrUnknownSubmessage = errors.New("unknown submessage")

// Message is a control submessage's payload. Its byte order is defined by the datagram's Header.
type Message interface {
	// SubmessageID of this Message's type.
	SubmessageID() SubmessageID

	Marshal(w io.Writer, order binary.ByteOrder) error
	Unmarshal(r io.Reader, order binary.ByteOrder) error

	fmt.Stringer
}

// messages maps the submessage IDs to an example instance of their type.
var messages = map[SubmessageID]Message{
	SYN:    &Syn{},
	SYNACK: &SynAck{},
	NAK:    &Nak{},
	NAKACK: &NakAck{},
}

// NewMessage creates a new, empty Message for a submessage ID.
func NewMessage(id SubmessageID) (msg Message, err error) {
	msgType, exists := messages[id]
	if !exists {
		err = fmt.Errorf("%w: no Message registered for submessage ID %v", ErrUnknownSubmessage, id)
		return
	}

	msgElem := reflect.TypeOf(msgType).Elem()
	msg = reflect.New(msgElem).Interface().(Message)
	return
}

// DecodeMessage parses a control payload for the given submessage ID.
func DecodeMessage(id SubmessageID, payload []byte, order binary.ByteOrder) (msg Message, err error) {
	if msg, err = NewMessage(id); err != nil {
		return
	}

	buf := bytes.NewBuffer(payload)
	if err = msg.Unmarshal(buf, order); err != nil {
		err = fmt.Errorf("unmarshalling %v failed: %w", id, err)
	} else if buf.Len() > 0 {
		err = fmt.Errorf("%v has %d trailing bytes", id, buf.Len())
	}
	return
}

// EncodeMessage serializes a Message's payload.
func EncodeMessage(msg Message, order binary.ByteOrder) ([]byte, error) {
	var buf bytes.Buffer
	if err := msg.Marshal(&buf, order); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Order returns the byte order named by a datagram's little endian flag.
func Order(littleEndian bool) binary.ByteOrder {
	if littleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}
