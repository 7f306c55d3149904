// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package multicast

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dtn7/dtn7-mcast/pkg/multicast/msgs"
	"github.com/dtn7/dtn7-mcast/pkg/sequence"
)

// dummyHub connects multiple dummySockets like a multicast group without loopback.
type dummyHub struct {
	mutex   sync.Mutex
	sockets []*dummySocket

	// drop decides if a datagram should be lost; it might be nil.
	drop func(d msgs.Datagram) bool
}

// newDummyHub creates a new dummyHub.
func newDummyHub() *dummyHub {
	return &dummyHub{}
}

// setDrop installs a loss function.
func (dh *dummyHub) setDrop(drop func(d msgs.Datagram) bool) {
	dh.mutex.Lock()
	defer dh.mutex.Unlock()

	dh.drop = drop
}

// connect a dummySocket to this dummyHub.
func (dh *dummyHub) connect(s *dummySocket) {
	dh.mutex.Lock()
	defer dh.mutex.Unlock()

	dh.sockets = append(dh.sockets, s)
}

// distribute a datagram to every other dummySocket.
func (dh *dummyHub) distribute(sender *dummySocket, data []byte) {
	dh.mutex.Lock()
	drop := dh.drop
	sockets := make([]*dummySocket, len(dh.sockets))
	copy(sockets, dh.sockets)
	dh.mutex.Unlock()

	if drop != nil {
		if d, err := msgs.ParseDatagram(data); err == nil && drop(d) {
			return
		}
	}

	for _, s := range sockets {
		if s != sender {
			s.deliver(data)
		}
	}
}

// dummySocket is a mocking DatagramSocket used for testing.
type dummySocket struct {
	hub    *dummyHub
	inChan chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// newDummySocket creates a new dummySocket and connects itself to a dummyHub.
func newDummySocket(hub *dummyHub) *dummySocket {
	s := &dummySocket{
		hub:    hub,
		inChan: make(chan []byte, 1024),
		closed: make(chan struct{}),
	}
	hub.connect(s)

	return s
}

func (s *dummySocket) deliver(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case s.inChan <- buf:
	case <-s.closed:
	}
}

func (s *dummySocket) Send(data []byte) error {
	select {
	case <-s.closed:
		return ErrLinkClosed
	default:
	}

	s.hub.distribute(s, data)
	return nil
}

func (s *dummySocket) Receive() ([]byte, error) {
	select {
	case data := <-s.inChan:
		return data, nil
	case <-s.closed:
		return nil, ErrLinkClosed
	}
}

func (s *dummySocket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *dummySocket) String() string {
	return fmt.Sprintf("dummysocket/%p", s)
}

// probe is a raw participant on a dummyHub, crafting and inspecting datagrams.
type probe struct {
	t      *testing.T
	socket *dummySocket

	// control is the latest control sequence number used by sendControl.
	control sequence.Number
}

func newProbe(t *testing.T, hub *dummyHub) *probe {
	return &probe{t: t, socket: newDummySocket(hub)}
}

// send a Datagram.
func (p *probe) send(d msgs.Datagram) {
	p.t.Helper()

	data, err := d.Bytes()
	if err != nil {
		p.t.Fatal(err)
	}
	if err := p.socket.Send(data); err != nil {
		p.t.Fatal(err)
	}
}

// sendControl from source, stamped with seq and a fresh control sequence number. The sent Datagram is returned.
func (p *probe) sendControl(source PeerId, seq sequence.Number, msg msgs.Message) msgs.Datagram {
	p.t.Helper()

	p.control++
	d, err := msgs.NewControlDatagram(source, seq, p.control, msg, false)
	if err != nil {
		p.t.Fatal(err)
	}
	p.send(d)
	return d
}

// sendData from source with seq.
func (p *probe) sendData(source PeerId, seq sequence.Number, payload []byte) {
	p.t.Helper()

	p.send(msgs.Datagram{
		Header: msgs.Header{
			Flags:    msgs.FlagLittleEndian,
			Kind:     msgs.KindData,
			Source:   source,
			Sequence: seq,
		},
		Payload: payload,
	})
}

// next Datagram within the timeout; ok is false if nothing arrived.
func (p *probe) next(timeout time.Duration) (d msgs.Datagram, ok bool) {
	p.t.Helper()

	select {
	case data := <-p.socket.inChan:
		var err error
		if d, err = msgs.ParseDatagram(data); err != nil {
			p.t.Fatal(err)
		}
		return d, true

	case <-time.After(timeout):
		return
	}
}

// expect the next Datagram matching cond, skipping all others.
func (p *probe) expect(timeout time.Duration, cond func(d msgs.Datagram) bool) msgs.Datagram {
	p.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.t.Fatal("Expected datagram did not arrive")
		}

		if d, ok := p.next(remaining); ok && cond(d) {
			return d
		}
	}
}

// expectControl returns the next control message of the given submessage ID.
func (p *probe) expectControl(timeout time.Duration, id msgs.SubmessageID) (msgs.Header, msgs.Message) {
	p.t.Helper()

	d := p.expect(timeout, func(d msgs.Datagram) bool {
		return d.Header.Kind == msgs.KindControl && d.Header.Submessage == id
	})

	msg, err := d.Message()
	if err != nil {
		p.t.Fatal(err)
	}
	return d.Header, msg
}

// collect every Datagram arriving within the duration.
func (p *probe) collect(duration time.Duration) (ds []msgs.Datagram) {
	p.t.Helper()

	deadline := time.Now().Add(duration)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		if d, ok := p.next(remaining); ok {
			ds = append(ds, d)
		}
	}
}

// testReceiver records every Receiver call.
type testReceiver struct {
	mutex       sync.Mutex
	associated  []PeerId
	unavailable []sequence.Range
	samples     []Sample
	acks        []sequence.Number
}

func (tr *testReceiver) CheckFullyAssociation(remote PeerId) {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()

	tr.associated = append(tr.associated, remote)
}

func (tr *testReceiver) DataUnavailable(_ PeerId, r sequence.Range) {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()

	tr.unavailable = append(tr.unavailable, r)
}

func (tr *testReceiver) DataReceived(sample Sample) {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()

	tr.samples = append(tr.samples, sample)
}

func (tr *testReceiver) AckReceived(_ PeerId, seq sequence.Number) {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()

	tr.acks = append(tr.acks, seq)
}

func (tr *testReceiver) associations() []PeerId {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()

	return append([]PeerId(nil), tr.associated...)
}

func (tr *testReceiver) unavailableRanges() []sequence.Range {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()

	return append([]sequence.Range(nil), tr.unavailable...)
}

func (tr *testReceiver) receivedSamples() []Sample {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()

	return append([]Sample(nil), tr.samples...)
}

func (tr *testReceiver) receivedAcks() []sequence.Number {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()

	return append([]sequence.Number(nil), tr.acks...)
}

// waitFor polls cond until it holds or the deadline is reached.
func waitFor(t *testing.T, deadline time.Duration, cond func() bool) {
	t.Helper()

	for start := time.Now(); time.Since(start) < deadline; time.Sleep(5 * time.Millisecond) {
		if cond() {
			return
		}
	}
	if !cond() {
		t.Fatalf("Condition did not hold within %v", deadline)
	}
}
