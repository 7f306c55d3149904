// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package multicast

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-mcast/pkg/multicast/msgs"
	"github.com/dtn7/dtn7-mcast/pkg/sequence"
)

// bestEffortSession delivers every DATA datagram. There are neither handshakes nor repairs.
type bestEffortSession struct {
	link   *DataLink
	remote PeerId

	mutex   sync.Mutex
	active  bool
	started bool
	high    sequence.Number
}

func newBestEffortSession(link *DataLink, remote PeerId) *bestEffortSession {
	return &bestEffortSession{
		link:   link,
		remote: remote,
	}
}

func (s *bestEffortSession) RemotePeer() PeerId {
	return s.remote
}

func (s *bestEffortSession) Active() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.active
}

func (s *bestEffortSession) Acked() bool {
	return true
}

func (s *bestEffortSession) Start(active bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.started {
		return fmt.Errorf("session %v was already started", s.remote)
	}

	s.active = active
	s.started = true

	s.logger().Debug("Best-effort session started")
	return nil
}

func (s *bestEffortSession) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.started = false
}

func (s *bestEffortSession) HeaderReceived(header msgs.Header) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if header.Sequence > s.high {
		s.high = header.Sequence
	}
	return true
}

func (s *bestEffortSession) ControlReceived(header msgs.Header, msg msgs.Message) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.logger().WithFields(log.Fields{
		"header":  header,
		"message": msg,
	}).Debug("Best-effort session ignores control message")
}

func (s *bestEffortSession) Retain(sequence.Number, []byte) {}

func (s *bestEffortSession) Info() SessionInfo {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return SessionInfo{
		Remote:     s.remote,
		Reliable:   false,
		Active:     s.active,
		Acked:      true,
		Cumulative: s.high,
		High:       s.high,
	}
}

func (s *bestEffortSession) logger() *log.Entry {
	return log.WithFields(log.Fields{
		"local":  s.link.local,
		"remote": s.remote,
		"role":   roleName(s.active),
	})
}

func (s *bestEffortSession) String() string {
	return fmt.Sprintf("best-effort session %v->%v", s.link.local, s.remote)
}
