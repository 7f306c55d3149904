// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Syn is sent by an active session. Peer is the addressed remote peer.
type Syn struct {
	Peer PeerId
}

// NewSyn addressing the given peer.
func NewSyn(peer PeerId) *Syn {
	return &Syn{Peer: peer}
}

func (s Syn) SubmessageID() SubmessageID {
	return SYN
}

func (s Syn) Marshal(w io.Writer, order binary.ByteOrder) error {
	return binary.Write(w, order, uint64(s.Peer))
}

func (s *Syn) Unmarshal(r io.Reader, order binary.ByteOrder) error {
	return binary.Read(r, order, (*uint64)(&s.Peer))
}

func (s Syn) String() string {
	return fmt.Sprintf("SYN(peer=%v)", s.Peer)
}

// SynAck acknowledges a Syn. Peer is the remote peer which sent the Syn.
type SynAck struct {
	Peer PeerId
}

// NewSynAck addressing the given peer.
func NewSynAck(peer PeerId) *SynAck {
	return &SynAck{Peer: peer}
}

func (s SynAck) SubmessageID() SubmessageID {
	return SYNACK
}

func (s SynAck) Marshal(w io.Writer, order binary.ByteOrder) error {
	return binary.Write(w, order, uint64(s.Peer))
}

func (s *SynAck) Unmarshal(r io.Reader, order binary.ByteOrder) error {
	return binary.Read(r, order, (*uint64)(&s.Peer))
}

func (s SynAck) String() string {
	return fmt.Sprintf("SYNACK(peer=%v)", s.Peer)
}
