// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package multicast

import (
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// maxDatagramSize is the largest UDP payload.
const maxDatagramSize = 65535

// DatagramSocket sends datagrams to and receives datagrams from a multicast group. Send and Receive might be called
// concurrently.
type DatagramSocket interface {
	// Send a datagram to the group.
	Send(data []byte) error

	// Receive blocks until the next datagram arrives or the socket is closed.
	Receive() ([]byte, error)

	// Close this socket; a blocking Receive must return an error.
	Close() error
}

// SocketConfig describes a MulticastSocket.
type SocketConfig struct {
	// Group is the multicast group's address, e.g., "239.255.0.2:7401" or "[ff02::dead:beef]:7401".
	Group string
	// Interface to join the group on; the system's default for an empty name.
	Interface string
	// TTL of outgoing datagrams, or their hop limit for IPv6.
	TTL int
	// Loopback of outgoing datagrams to this host.
	Loopback bool
	// ReceiveBuffer size of the socket, if positive.
	ReceiveBuffer int
}

// MulticastSocket is a UDP based DatagramSocket.
type MulticastSocket struct {
	conn  *net.UDPConn
	group *net.UDPAddr
}

// NewMulticastSocket joins the configured multicast group.
func NewMulticastSocket(conf SocketConfig) (ms *MulticastSocket, err error) {
	group, err := net.ResolveUDPAddr("udp", conf.Group)
	if err != nil {
		return nil, fmt.Errorf("resolving group %s failed: %w", conf.Group, err)
	} else if !group.IP.IsMulticast() {
		return nil, fmt.Errorf("%v is no multicast address", group.IP)
	}

	var ifi *net.Interface
	if conf.Interface != "" {
		if ifi, err = net.InterfaceByName(conf.Interface); err != nil {
			return nil, err
		}
	}

	conn, err := net.ListenMulticastUDP("udp", ifi, group)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			_ = conn.Close()
		}
	}()

	if conf.ReceiveBuffer > 0 {
		if err = conn.SetReadBuffer(conf.ReceiveBuffer); err != nil {
			return nil, err
		}
	}

	if group.IP.To4() != nil {
		err = setupIPv4(ipv4.NewPacketConn(conn), ifi, conf)
	} else {
		err = setupIPv6(ipv6.NewPacketConn(conn), ifi, conf)
	}
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"group":     group,
		"interface": conf.Interface,
		"ttl":       conf.TTL,
	}).Info("Joined multicast group")

	return &MulticastSocket{conn: conn, group: group}, nil
}

func setupIPv4(pc *ipv4.PacketConn, ifi *net.Interface, conf SocketConfig) error {
	if ifi != nil {
		if err := pc.SetMulticastInterface(ifi); err != nil {
			return err
		}
	}
	if conf.TTL > 0 {
		if err := pc.SetMulticastTTL(conf.TTL); err != nil {
			return err
		}
	}
	return pc.SetMulticastLoopback(conf.Loopback)
}

func setupIPv6(pc *ipv6.PacketConn, ifi *net.Interface, conf SocketConfig) error {
	if ifi != nil {
		if err := pc.SetMulticastInterface(ifi); err != nil {
			return err
		}
	}
	if conf.TTL > 0 {
		if err := pc.SetMulticastHopLimit(conf.TTL); err != nil {
			return err
		}
	}
	return pc.SetMulticastLoopback(conf.Loopback)
}

func (ms *MulticastSocket) Send(data []byte) error {
	_, err := ms.conn.WriteToUDP(data, ms.group)
	return err
}

func (ms *MulticastSocket) Receive() ([]byte, error) {
	buf := make([]byte, maxDatagramSize)
	n, _, err := ms.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (ms *MulticastSocket) Close() error {
	return ms.conn.Close()
}

func (ms *MulticastSocket) String() string {
	return fmt.Sprintf("multicast://%v", ms.group)
}
