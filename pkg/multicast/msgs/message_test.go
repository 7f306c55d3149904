// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		id       SubmessageID
		expected Message
	}{
		{SYN, &Syn{}},
		{SYNACK, &SynAck{}},
		{NAK, &Nak{}},
		{NAKACK, &NakAck{}},
	}

	for _, test := range tests {
		if msg, err := NewMessage(test.id); err != nil {
			t.Fatal(err)
		} else if reflect.TypeOf(msg) != reflect.TypeOf(test.expected) {
			t.Fatalf("%v: expected type %T, got %T", test.id, test.expected, msg)
		} else if msg.SubmessageID() != test.id {
			t.Fatalf("%v: Message reports ID %v", test.id, msg.SubmessageID())
		}
	}
}

func TestNewMessageUnknown(t *testing.T) {
	if _, err := NewMessage(0x42); !errors.Is(err, ErrUnknownSubmessage) {
		t.Fatalf("Expected ErrUnknownSubmessage, got %v", err)
	}
}

func TestSynMessages(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.BigEndian, binary.LittleEndian} {
		for _, msg := range []Message{NewSyn(0xCAFE), NewSynAck(0xBABE)} {
			payload, err := EncodeMessage(msg, order)
			if err != nil {
				t.Fatal(err)
			} else if len(payload) != 8 {
				t.Fatalf("%v has %d bytes", msg, len(payload))
			}

			if msg2, err := DecodeMessage(msg.SubmessageID(), payload, order); err != nil {
				t.Fatal(err)
			} else if !reflect.DeepEqual(msg, msg2) {
				t.Fatalf("Message does not match, expected %v and got %v", msg, msg2)
			}
		}
	}
}

func TestDecodeMessageTrailingBytes(t *testing.T) {
	payload := make([]byte, 9)
	if _, err := DecodeMessage(SYN, payload, binary.BigEndian); err == nil {
		t.Fatal("Decoding a SYN with trailing bytes did not fail")
	}
}

func TestParsePeerId(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
		peer  PeerId
	}{
		{"23", true, 23},
		{"0xdeadbeef", true, 0xDEADBEEF},
		{"0xffffffffffffffff", true, 0xFFFFFFFFFFFFFFFF},
		{"", false, 0},
		{"-1", false, 0},
		{"peer", false, 0},
	}

	for _, test := range tests {
		if peer, err := ParsePeerId(test.in); (err == nil) != test.valid {
			t.Fatalf("%q: error state was not expected; valid := %t, got := %v", test.in, test.valid, err)
		} else if test.valid && peer != test.peer {
			t.Fatalf("%q: expected %v, got %v", test.in, test.peer, peer)
		}
	}

	if s := PeerId(0xAB).String(); s != "0x00000000000000ab" {
		t.Fatalf("Unexpected string %q", s)
	}
}
