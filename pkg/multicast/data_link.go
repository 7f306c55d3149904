// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package multicast

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-mcast/pkg/multicast/msgs"
	"github.com/dtn7/dtn7-mcast/pkg/sequence"
	"github.com/dtn7/dtn7-mcast/pkg/watchdog"
)

// ErrLinkClosed is returned for operations on a closed DataLink.
var ErrLinkClosed = errors.New("data link is closed")

// DataLink owns a DatagramSocket and one Session per remote peer. Inbound datagrams are demultiplexed by their source
// to the matching Session and are processed on the Dispatcher's goroutine.
type DataLink struct {
	local      PeerId
	config     Config
	socket     DatagramSocket
	dispatcher *watchdog.Dispatcher
	receiver   Receiver

	sessionsMutex sync.Mutex
	sessions      map[PeerId]Session

	// sendMutex orders sequence assignment, retention and sending of DATA datagrams.
	sendMutex sync.Mutex
	// sequence is the latest assigned DATA sequence number, accessed atomically.
	sequence int64
	// control is the latest assigned control sequence number, accessed atomically. It starts at the link's creation
	// time, so a restarted peer continues above its former control sequence numbers.
	control int64

	// controlsMutex protects controls, the seen control sequence numbers per source.
	controlsMutex sync.Mutex
	controls      map[PeerId]*sequence.DisjointSequence

	stateMutex sync.Mutex
	running    bool
	closed     bool
	receiveErr error

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewDataLink for the local peer on a DatagramSocket. The Dispatcher might be nil for best-effort Sessions only. A nil
// Receiver discards everything.
func NewDataLink(local PeerId, config Config, socket DatagramSocket, dispatcher *watchdog.Dispatcher, receiver Receiver) (*DataLink, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if socket == nil {
		return nil, fmt.Errorf("no socket")
	}
	if receiver == nil {
		receiver = nopReceiver{}
	}

	return &DataLink{
		local:      local,
		config:     config,
		socket:     socket,
		dispatcher: dispatcher,
		receiver:   receiver,

		sessions: make(map[PeerId]Session),

		control:  time.Now().UnixNano(),
		controls: make(map[PeerId]*sequence.DisjointSequence),

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}, nil
}

// LocalPeer of this DataLink.
func (dl *DataLink) LocalPeer() PeerId {
	return dl.local
}

// Start receiving datagrams.
func (dl *DataLink) Start() error {
	dl.stateMutex.Lock()
	defer dl.stateMutex.Unlock()

	if dl.closed {
		return ErrLinkClosed
	} else if dl.running {
		return nil
	}

	dl.running = true
	go dl.handle()

	dl.logger().Info("Data link started")
	return nil
}

// handle inbound datagrams until the socket is closed.
func (dl *DataLink) handle() {
	defer close(dl.stopAck)

	for {
		data, err := dl.socket.Receive()
		if err != nil {
			select {
			case <-dl.stopSyn:
				return
			default:
			}

			if !errors.Is(err, net.ErrClosed) && !errors.Is(err, ErrLinkClosed) {
				dl.logger().WithError(err).Error("Receiving datagram failed, stopping reception")

				dl.stateMutex.Lock()
				dl.receiveErr = err
				dl.stateMutex.Unlock()
			}
			return
		}

		dl.receive(data)
	}
}

// receive decodes a datagram and dispatches its processing.
func (dl *DataLink) receive(data []byte) {
	d, err := msgs.ParseDatagram(data)
	if err != nil {
		dl.logger().WithError(err).WithField("length", len(data)).Warn("Dropping malformed datagram")
		return
	}

	if d.Header.Source == dl.local {
		return
	}

	if dl.dispatcher == nil {
		dl.handleDatagram(d)
		return
	}

	if err := dl.dispatcher.Post(func() { dl.handleDatagram(d) }); err != nil {
		dl.logger().WithError(err).WithField("header", d.Header).Warn("Dispatching datagram failed")
	}
}

func (dl *DataLink) handleDatagram(d msgs.Datagram) {
	if !dl.HeaderReceived(d.Header) {
		dl.logger().WithField("header", d.Header).Debug("Dropping datagram")
		return
	}

	dl.SampleReceived(d)
}

// HeaderReceived checks if an inbound datagram should be processed. No datagram must be a duplicate. DATA and
// SAMPLE_ACK datagrams require a Session for their source, control datagrams are accepted from every source.
func (dl *DataLink) HeaderReceived(header msgs.Header) bool {
	switch header.Kind {
	case msgs.KindControl:
		return dl.controlHeaderReceived(header)

	case msgs.KindData:
		if s := dl.session(header.Source); s != nil {
			return s.HeaderReceived(header)
		}
		return false

	case msgs.KindSampleAck:
		return dl.session(header.Source) != nil && dl.controlHeaderReceived(header)

	default:
		dl.logger().WithField("header", header).Warn("Received datagram of unknown kind")
		return false
	}
}

// controlHeaderReceived records the control sequence number of a control or SAMPLE_ACK datagram. False is returned
// for a duplicate. The record outlives the source's Session.
func (dl *DataLink) controlHeaderReceived(header msgs.Header) bool {
	dl.controlsMutex.Lock()
	defer dl.controlsMutex.Unlock()

	controls, ok := dl.controls[header.Source]
	if !ok {
		controls = sequence.NewDisjointSequence()
		dl.controls[header.Source] = controls
	}
	return controls.Update(header.Control)
}

// SampleReceived processes an inbound datagram which passed HeaderReceived.
func (dl *DataLink) SampleReceived(d msgs.Datagram) {
	switch d.Header.Kind {
	case msgs.KindControl:
		dl.controlReceived(d)

	case msgs.KindData:
		dl.receiver.DataReceived(Sample{
			Remote:   d.Header.Source,
			Sequence: d.Header.Sequence,
			Payload:  d.Payload,
		})

	case msgs.KindSampleAck:
		ack, err := d.SampleAck()
		if err != nil {
			dl.logger().WithError(err).Warn("Dropping malformed sample ack")
			return
		} else if ack.Peer != dl.local {
			return
		}
		dl.receiver.AckReceived(d.Header.Source, ack.Sequence)
	}
}

// controlReceived is passed to every Session. A SYN addressed to this peer creates a passive Session first.
func (dl *DataLink) controlReceived(d msgs.Datagram) {
	msg, err := d.Message()
	if errors.Is(err, msgs.ErrUnknownSubmessage) {
		dl.logger().WithError(err).WithField("header", d.Header).Warn("Dropping unknown control submessage")
		return
	} else if err != nil {
		dl.logger().WithError(err).WithField("header", d.Header).Warn("Dropping malformed control submessage")
		return
	}

	if syn, ok := msg.(*msgs.Syn); ok && syn.Peer == dl.local && dl.config.Reliable && dl.session(d.Header.Source) == nil {
		if err := dl.ObtainSession(d.Header.Source, false); err != nil {
			dl.logger().WithError(err).WithField("remote", d.Header.Source).Warn("Creating passive session failed")
		}
	}

	for _, s := range dl.snapshot() {
		s.ControlReceived(d.Header, msg)
	}
}

func (dl *DataLink) newSession(remote PeerId) (Session, error) {
	if dl.config.Reliable {
		return newReliableSession(dl, remote)
	}
	return newBestEffortSession(dl, remote), nil
}

// ObtainSession ensures a started Session for the remote peer. An existing Session is left untouched. A failed
// Session is not kept.
func (dl *DataLink) ObtainSession(remote PeerId, active bool) error {
	if remote == dl.local {
		return fmt.Errorf("no session to the local peer %v", remote)
	}

	// Close marks the link as closed before it takes over the sessions, both checked under the sessionsMutex.
	dl.sessionsMutex.Lock()
	if dl.isClosed() {
		dl.sessionsMutex.Unlock()
		return ErrLinkClosed
	}
	if _, exists := dl.sessions[remote]; exists {
		dl.sessionsMutex.Unlock()
		return nil
	}

	s, err := dl.newSession(remote)
	if err != nil {
		dl.sessionsMutex.Unlock()
		return err
	}
	if err := s.Start(active); err != nil {
		dl.sessionsMutex.Unlock()
		return err
	}
	dl.sessions[remote] = s
	dl.sessionsMutex.Unlock()

	dl.logger().WithFields(log.Fields{
		"remote": remote,
		"role":   roleName(active),
	}).Info("Obtained session")

	if s.Acked() {
		dl.receiver.CheckFullyAssociation(remote)
	}
	return nil
}

// RemoveSession stops and forgets the remote peer's Session.
func (dl *DataLink) RemoveSession(remote PeerId) bool {
	dl.sessionsMutex.Lock()
	s, exists := dl.sessions[remote]
	delete(dl.sessions, remote)
	dl.sessionsMutex.Unlock()

	if exists {
		s.Stop()
	}
	return exists
}

// Session returns a snapshot of the remote peer's Session.
func (dl *DataLink) Session(remote PeerId) (info SessionInfo, ok bool) {
	if s := dl.session(remote); s != nil {
		info, ok = s.Info(), true
	}
	return
}

// Sessions returns snapshots of all Sessions, ordered by their remote peer.
func (dl *DataLink) Sessions() []SessionInfo {
	sessions := dl.snapshot()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Remote < infos[j].Remote })

	return infos
}

func (dl *DataLink) session(remote PeerId) Session {
	dl.sessionsMutex.Lock()
	defer dl.sessionsMutex.Unlock()

	return dl.sessions[remote]
}

func (dl *DataLink) snapshot() []Session {
	dl.sessionsMutex.Lock()
	defer dl.sessionsMutex.Unlock()

	sessions := make([]Session, 0, len(dl.sessions))
	for _, s := range dl.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Send a payload to the group. The assigned sequence number is returned. Reliable Sessions retain the datagram for
// repair, even if sending fails.
func (dl *DataLink) Send(payload []byte) (sequence.Number, error) {
	if dl.isClosed() {
		return sequence.None, ErrLinkClosed
	}

	dl.sendMutex.Lock()
	defer dl.sendMutex.Unlock()

	seq := dl.currentSequence().Next()
	d := msgs.Datagram{
		Header: msgs.Header{
			Flags:    dl.flags(),
			Kind:     msgs.KindData,
			Source:   dl.local,
			Sequence: seq,
		},
		Payload: payload,
	}

	data, err := d.Bytes()
	if err != nil {
		return sequence.None, err
	}
	atomic.StoreInt64(&dl.sequence, int64(seq))

	for _, s := range dl.snapshot() {
		s.Retain(seq, data)
	}

	if err := dl.socket.Send(data); err != nil {
		return seq, fmt.Errorf("sending datagram %d failed: %w", seq, err)
	}
	return seq, nil
}

// SendAck acknowledges a remote peer's sample.
func (dl *DataLink) SendAck(remote PeerId, seq sequence.Number) error {
	if dl.isClosed() {
		return ErrLinkClosed
	}

	ack := msgs.SampleAck{Peer: remote, Sequence: seq}
	d, err := msgs.NewSampleAckDatagram(dl.local, dl.currentSequence(), dl.nextControl(), ack, dl.config.SwapBytes)
	if err != nil {
		return err
	}

	data, err := d.Bytes()
	if err != nil {
		return err
	}
	return dl.socket.Send(data)
}

// sendControl sends a control message, stamped with the latest assigned DATA sequence number and the next control
// sequence number.
func (dl *DataLink) sendControl(msg msgs.Message) error {
	d, err := msgs.NewControlDatagram(dl.local, dl.currentSequence(), dl.nextControl(), msg, dl.config.SwapBytes)
	if err != nil {
		return err
	}

	data, err := d.Bytes()
	if err != nil {
		return err
	}
	return dl.socket.Send(data)
}

// resend a retained datagram unaltered.
func (dl *DataLink) resend(data []byte) error {
	return dl.socket.Send(data)
}

func (dl *DataLink) currentSequence() sequence.Number {
	return sequence.Number(atomic.LoadInt64(&dl.sequence))
}

func (dl *DataLink) nextControl() sequence.Number {
	return sequence.Number(atomic.AddInt64(&dl.control, 1))
}

func (dl *DataLink) flags() (flags uint8) {
	if !dl.config.SwapBytes {
		flags |= msgs.FlagLittleEndian
	}
	return
}

func (dl *DataLink) isClosed() bool {
	dl.stateMutex.Lock()
	defer dl.stateMutex.Unlock()

	return dl.closed
}

// Close this DataLink. Every Session is stopped before the socket is closed.
func (dl *DataLink) Close() (err error) {
	dl.stateMutex.Lock()
	if dl.closed {
		dl.stateMutex.Unlock()
		return nil
	}
	dl.closed = true
	running := dl.running
	dl.stateMutex.Unlock()

	close(dl.stopSyn)

	dl.sessionsMutex.Lock()
	sessions := dl.sessions
	dl.sessions = make(map[PeerId]Session)
	dl.sessionsMutex.Unlock()

	for _, s := range sessions {
		s.Stop()
	}

	if closeErr := dl.socket.Close(); closeErr != nil {
		err = multierror.Append(err, closeErr)
	}

	if running {
		<-dl.stopAck
	}

	dl.stateMutex.Lock()
	if dl.receiveErr != nil {
		err = multierror.Append(err, dl.receiveErr)
	}
	dl.stateMutex.Unlock()

	dl.logger().Info("Data link closed")
	return
}

func (dl *DataLink) logger() *log.Entry {
	return log.WithField("local", dl.local)
}

func (dl *DataLink) String() string {
	return fmt.Sprintf("data link %v", dl.local)
}
