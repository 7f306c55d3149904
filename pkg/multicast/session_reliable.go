// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package multicast

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-mcast/pkg/multicast/msgs"
	"github.com/dtn7/dtn7-mcast/pkg/sequence"
	"github.com/dtn7/dtn7-mcast/pkg/watchdog"
)

// nakRequest records the high-water mark at the time a NAK cycle found gaps.
type nakRequest struct {
	time time.Time
	high sequence.Number
}

// reliableSession performs the SYN/SYNACK handshake and the NAK/NAKACK repair for one remote peer.
//
// The active side probes with SYNs until a SYNACK arrives. The passive side tracks the remote peer's sequence and
// requests missing ranges. Both sides retain their sent datagrams and answer NAKs addressed to them.
type reliableSession struct {
	link   *DataLink
	remote PeerId

	sendBuffer *SendBuffer

	synWatchdog *watchdog.Watchdog
	nakWatchdog *watchdog.Watchdog

	// mutex protects the following fields.
	mutex   sync.Mutex
	active  bool
	started bool
	stopped bool
	acked   bool

	nakSequence sequence.DisjointSequence
	nakRequests []nakRequest
	// nakPeers are ranges other peers requested from the remote peer during the current NAK cycle.
	nakPeers []sequence.Range
}

func newReliableSession(link *DataLink, remote PeerId) (*reliableSession, error) {
	sendBuffer, err := NewSendBuffer(link.config.NakDepth)
	if err != nil {
		return nil, err
	}

	s := &reliableSession{
		link:       link,
		remote:     remote,
		sendBuffer: sendBuffer,
	}

	s.synWatchdog = watchdog.New(fmt.Sprintf("syn %v->%v", link.local, remote), &synHandler{
		session: s,
		backoff: watchdog.Backoff{Interval: link.config.SynInterval, Factor: link.config.SynBackoff},
	})
	s.nakWatchdog = watchdog.New(fmt.Sprintf("nak %v->%v", link.local, remote), &nakHandler{session: s})

	return s, nil
}

func (s *reliableSession) RemotePeer() PeerId {
	return s.remote
}

func (s *reliableSession) Active() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.active
}

func (s *reliableSession) Acked() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.acked
}

func (s *reliableSession) Start(active bool) error {
	s.mutex.Lock()
	if s.started || s.stopped {
		s.mutex.Unlock()
		return fmt.Errorf("session %v was already started", s.remote)
	}

	dispatcher := s.link.dispatcher
	if dispatcher == nil {
		s.stopped = true
		s.mutex.Unlock()

		s.sendBuffer.Clear()
		return fmt.Errorf("reliable session %v cannot be started: %w", s.remote, watchdog.ErrNoDispatcher)
	}

	s.active = active
	s.started = true
	s.mutex.Unlock()

	var err error
	if active {
		err = s.synWatchdog.ScheduleNow(dispatcher)
	} else {
		err = s.nakWatchdog.Schedule(dispatcher)
	}
	if err != nil {
		s.Stop()
		return fmt.Errorf("reliable session %v cannot schedule its watchdog: %w", s.remote, err)
	}

	s.logger().Info("Reliable session started")
	return nil
}

func (s *reliableSession) Stop() {
	s.mutex.Lock()
	if s.stopped {
		s.mutex.Unlock()
		return
	}
	s.stopped = true
	s.nakRequests = nil
	s.nakPeers = nil
	s.mutex.Unlock()

	s.synWatchdog.Cancel()
	s.nakWatchdog.Cancel()
	s.sendBuffer.Clear()

	s.logger().Info("Reliable session stopped")
}

func (s *reliableSession) HeaderReceived(header msgs.Header) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stopped {
		return false
	}
	return s.nakSequence.Update(header.Sequence)
}

func (s *reliableSession) ControlReceived(header msgs.Header, msg msgs.Message) {
	switch m := msg.(type) {
	case *msgs.Syn:
		s.synReceived(header, m)
	case *msgs.SynAck:
		s.synAckReceived(header, m)
	case *msgs.Nak:
		s.nakReceived(header, m)
	case *msgs.NakAck:
		s.nakAckReceived(header, m)
	default:
		s.logger().WithField("message", msg).Warn("Reliable session received an unsupported control message")
	}
}

func (s *reliableSession) Retain(seq sequence.Number, data []byte) {
	s.sendBuffer.Insert(seq, data)
}

func (s *reliableSession) Info() SessionInfo {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return SessionInfo{
		Remote:     s.remote,
		Reliable:   true,
		Active:     s.active,
		Acked:      s.acked,
		Cumulative: s.nakSequence.Cumulative(),
		High:       s.nakSequence.High(),
		Missing:    s.nakSequence.MissingRanges(),
		Retained:   s.sendBuffer.Len(),
	}
}

// synReceived on the passive side re-baselines the tracked sequence and acknowledges the first SYN.
func (s *reliableSession) synReceived(header msgs.Header, syn *msgs.Syn) {
	if header.Source != s.remote || syn.Peer != s.link.local {
		return
	}

	s.mutex.Lock()
	if !s.started || s.stopped || s.active || s.acked {
		s.mutex.Unlock()
		return
	}
	s.acked = true
	s.nakSequence.Reset(header.Sequence)
	s.mutex.Unlock()

	s.logger().WithField("sequence", header.Sequence).Info("Received SYN, session is acknowledged")

	s.sendSynAck()
	s.link.receiver.CheckFullyAssociation(s.remote)
}

func (s *reliableSession) sendSynAck() {
	// Announce the own repair floor first; the remote peer should not NAK what is already gone.
	if !s.sendBuffer.Empty() {
		if low := s.sendBuffer.Low(); low > 1 {
			s.sendControl(msgs.NewNakAck(low))
		}
	}

	s.sendControl(msgs.NewSynAck(s.remote))
}

// synAckReceived on the active side finishes the handshake.
func (s *reliableSession) synAckReceived(header msgs.Header, synAck *msgs.SynAck) {
	if header.Source != s.remote || synAck.Peer != s.link.local {
		return
	}

	s.mutex.Lock()
	if !s.started || s.stopped || !s.active || s.acked {
		s.mutex.Unlock()
		return
	}
	s.acked = true
	s.mutex.Unlock()

	s.synWatchdog.Cancel()

	s.logger().Info("Received SYNACK, session is acknowledged")
	s.link.receiver.CheckFullyAssociation(s.remote)
}

// nakReceived either records another peer's repair request for suppression or repairs from the SendBuffer.
func (s *reliableSession) nakReceived(header msgs.Header, nak *msgs.Nak) {
	s.mutex.Lock()
	if s.stopped {
		s.mutex.Unlock()
		return
	}

	if nak.Peer == s.remote && header.Source != s.remote {
		s.nakPeers = append(s.nakPeers, nak.Ranges...)
		s.mutex.Unlock()
		return
	}
	s.mutex.Unlock()

	if nak.Peer != s.link.local || header.Source != s.remote {
		return
	}

	var unsatisfied []sequence.Range
	for _, r := range nak.Ranges {
		unsatisfied = append(unsatisfied, s.sendBuffer.Resend(r, s.resend)...)
	}
	if len(unsatisfied) == 0 {
		return
	}

	floor := s.sendBuffer.Low()
	if floor == sequence.None {
		floor = s.link.currentSequence().Next()
	}

	s.logger().WithFields(log.Fields{
		"unsatisfied": sequence.Normalize(unsatisfied),
		"floor":       floor,
	}).Warn("NAK requested datagrams which are no longer retained")

	s.sendControl(msgs.NewNakAck(floor))
}

func (s *reliableSession) resend(seq sequence.Number, data []byte) {
	if err := s.link.resend(data); err != nil {
		s.logger().WithError(err).WithField("sequence", seq).Warn("Resending datagram failed")
	}
}

// nakAckReceived gives up on everything below the remote peer's repair floor.
func (s *reliableSession) nakAckReceived(header msgs.Header, nakAck *msgs.NakAck) {
	if header.Source != s.remote {
		return
	}

	s.mutex.Lock()
	if s.stopped {
		s.mutex.Unlock()
		return
	}
	dropped := s.nakSequence.LowestValid(nakAck.Low)
	s.mutex.Unlock()

	for _, r := range dropped {
		s.logger().WithField("range", r).Warn("Remote peer cannot repair range, data is unavailable")
		s.link.receiver.DataUnavailable(s.remote, r)
	}
}

// expireNaks drops gaps whose repair was requested longer than the NAK timeout ago.
func (s *reliableSession) expireNaks(now time.Time) {
	deadline := now.Add(-s.link.config.NakTimeout)

	s.mutex.Lock()
	if s.stopped {
		s.mutex.Unlock()
		return
	}

	expired := 0
	var high sequence.Number
	for expired < len(s.nakRequests) && s.nakRequests[expired].time.Before(deadline) {
		high = s.nakRequests[expired].high
		expired++
	}
	if expired == 0 {
		s.mutex.Unlock()
		return
	}
	s.nakRequests = s.nakRequests[expired:]

	var dropped []sequence.Range
	if s.nakSequence.Cumulative() < high {
		dropped = s.nakSequence.Shift(high)
	}
	s.mutex.Unlock()

	for _, r := range dropped {
		s.logger().WithField("range", r).Warn("NAK expired without repair, data is unavailable")
		s.link.receiver.DataUnavailable(s.remote, r)
	}
}

// sendNaks requests every missing range not already requested by another peer during this cycle.
func (s *reliableSession) sendNaks(now time.Time) {
	s.mutex.Lock()
	if s.stopped || !s.acked || !s.nakSequence.Disjoint() {
		s.nakPeers = nil
		s.mutex.Unlock()
		return
	}

	s.nakRequests = append(s.nakRequests, nakRequest{time: now, high: s.nakSequence.High()})

	missing := sequence.Subtract(s.nakSequence.MissingRanges(), s.nakPeers)
	s.nakPeers = nil
	s.mutex.Unlock()

	if len(missing) == 0 {
		s.logger().Debug("All missing ranges were already requested by other peers")
		return
	}

	s.logger().WithField("missing", missing).Debug("Sending NAK")
	s.sendControl(msgs.NewNak(s.remote, missing))
}

func (s *reliableSession) sendSyn() {
	if s.Acked() {
		return
	}

	s.logger().Debug("Sending SYN")
	s.sendControl(msgs.NewSyn(s.remote))
}

func (s *reliableSession) synTimedOut() {
	s.logger().WithField("timeout", s.link.config.SynTimeout).Warn("No SYNACK received, giving up handshake")
}

func (s *reliableSession) sendControl(msg msgs.Message) {
	if err := s.link.sendControl(msg); err != nil {
		s.logger().WithError(err).WithField("message", msg).Warn("Sending control message failed")
	}
}

func (s *reliableSession) logger() *log.Entry {
	s.mutex.Lock()
	active := s.active
	s.mutex.Unlock()

	return log.WithFields(log.Fields{
		"local":  s.link.local,
		"remote": s.remote,
		"role":   roleName(active),
	})
}

func (s *reliableSession) String() string {
	return fmt.Sprintf("reliable session %v->%v", s.link.local, s.remote)
}

// synHandler drives the active side's SYN probing with an exponential backoff.
type synHandler struct {
	session *reliableSession
	backoff watchdog.Backoff
}

func (h *synHandler) NextInterval() time.Duration {
	return h.backoff.Next()
}

func (h *synHandler) OnInterval() {
	h.session.sendSyn()
}

func (h *synHandler) NextTimeout() time.Duration {
	return h.session.link.config.SynTimeout
}

func (h *synHandler) OnTimeout() {
	h.session.synTimedOut()
}

// nakHandler drives the passive side's gap scanning with a jittered interval.
type nakHandler struct {
	session *reliableSession
}

func (h *nakHandler) NextInterval() time.Duration {
	return watchdog.Jitter(h.session.link.config.NakInterval)
}

func (h *nakHandler) OnInterval() {
	now := time.Now()

	h.session.expireNaks(now)
	h.session.sendNaks(now)
}

func (h *nakHandler) NextTimeout() time.Duration {
	return 0
}

func (h *nakHandler) OnTimeout() {}
