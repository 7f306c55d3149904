// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/dtn7/dtn7-mcast/pkg/sequence"
)

func TestNakMessage(t *testing.T) {
	data := []byte{
		// Peer:
		0x00, 0x00, 0x00, 0x00, 0xDE, 0xAD, 0xBE, 0xEF,
		// Range Count:
		0x00, 0x00, 0x00, 0x02,
		// Range 1:
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05,
		// Range 2:
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x09,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x09,
	}
	nak := NewNak(0xDEADBEEF, []sequence.Range{{Low: 3, High: 5}, {Low: 9, High: 9}})

	var buf bytes.Buffer
	if err := nak.Marshal(&buf, binary.BigEndian); err != nil {
		t.Fatal(err)
	} else if !bytes.Equal(buf.Bytes(), data) {
		t.Fatalf("Data does not match, expected %x and got %x", data, buf.Bytes())
	}

	var nak2 = new(Nak)
	if err := nak2.Unmarshal(&buf, binary.BigEndian); err != nil {
		t.Fatal(err)
	} else if !reflect.DeepEqual(nak, nak2) {
		t.Fatalf("Nak does not match, expected %v and got %v", nak, nak2)
	}
}

func TestNakMessageManyRanges(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.BigEndian, binary.LittleEndian} {
		var ranges []sequence.Range
		for i := sequence.Number(1); i < 1000; i += 3 {
			ranges = append(ranges, sequence.NewRange(i, i+1))
		}
		nak := NewNak(0x0102030405060708, ranges)

		payload, err := EncodeMessage(nak, order)
		if err != nil {
			t.Fatal(err)
		}
		if expected := 8 + 4 + 16*len(ranges); len(payload) != expected {
			t.Fatalf("Payload of %d bytes, expected %d", len(payload), expected)
		}

		msg, err := DecodeMessage(NAK, payload, order)
		if err != nil {
			t.Fatal(err)
		} else if !reflect.DeepEqual(nak, msg) {
			t.Fatalf("%v: Nak does not match, expected %v and got %v", order, nak, msg)
		}
	}
}

func TestNakMessageTruncated(t *testing.T) {
	payload, err := EncodeMessage(NewNak(23, []sequence.Range{{Low: 1, High: 2}}), binary.LittleEndian)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < len(payload); i++ {
		if _, err := DecodeMessage(NAK, payload[:i], binary.LittleEndian); err == nil {
			t.Fatalf("Decoding %d of %d bytes did not fail", i, len(payload))
		}
	}
}

func TestNakAckMessage(t *testing.T) {
	data := []byte{0x2A, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

	if payload, err := EncodeMessage(NewNakAck(42), binary.LittleEndian); err != nil {
		t.Fatal(err)
	} else if !bytes.Equal(payload, data) {
		t.Fatalf("Data does not match, expected %x and got %x", data, payload)
	}

	if msg, err := DecodeMessage(NAKACK, data, binary.LittleEndian); err != nil {
		t.Fatal(err)
	} else if nakAck, ok := msg.(*NakAck); !ok || nakAck.Low != 42 {
		t.Fatalf("Unexpected message %v", msg)
	}
}
