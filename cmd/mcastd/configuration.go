// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-mcast/pkg/multicast"
	"github.com/dtn7/dtn7-mcast/pkg/multicast/msgs"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Core     coreConf
	Logging  logConf
	Socket   socketConf
	Reliable reliableConf
	Rest     restConf
	Peer     []peerConf
}

// coreConf describes the Core-configuration block.
type coreConf struct {
	PeerId    string `toml:"peer-id"`
	Reliable  bool
	SwapBytes bool `toml:"swap-bytes"`
	QueueSize int  `toml:"queue-size"`
	Stdin     bool
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// socketConf describes the multicast group to join.
type socketConf struct {
	Group         string
	Interface     string
	TTL           int
	Loopback      bool
	ReceiveBuffer int `toml:"receive-buffer"`
}

// reliableConf overrides the reliable session defaults. Durations are parsed by time.ParseDuration.
type reliableConf struct {
	SynBackoff  float64 `toml:"syn-backoff"`
	SynInterval string  `toml:"syn-interval"`
	SynTimeout  string  `toml:"syn-timeout"`
	NakDepth    int     `toml:"nak-depth"`
	NakInterval string  `toml:"nak-interval"`
	NakTimeout  string  `toml:"nak-timeout"`
}

// restConf describes the REST status API.
type restConf struct {
	Listen string
}

// peerConf describes a remote peer to obtain a session for.
type peerConf struct {
	PeerId string `toml:"peer-id"`
	Active bool
}

// parseLogging configures logrus based on the Logging-configuration block.
func parseLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

// parseDuration into dst, if s is not empty.
func parseDuration(name, s string, dst *time.Duration) error {
	if s == "" {
		return nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("reliable.%s: %w", name, err)
	}
	*dst = d
	return nil
}

// parseLinkConfig merges the Core and Reliable blocks into the defaults.
func parseLinkConfig(core coreConf, rel reliableConf) (conf multicast.Config, err error) {
	conf = multicast.DefaultConfig()
	conf.Reliable = core.Reliable
	conf.SwapBytes = core.SwapBytes

	if rel.SynBackoff != 0 {
		conf.SynBackoff = rel.SynBackoff
	}
	if rel.NakDepth != 0 {
		conf.NakDepth = rel.NakDepth
	}

	durations := []struct {
		name string
		s    string
		dst  *time.Duration
	}{
		{"syn-interval", rel.SynInterval, &conf.SynInterval},
		{"syn-timeout", rel.SynTimeout, &conf.SynTimeout},
		{"nak-interval", rel.NakInterval, &conf.NakInterval},
		{"nak-timeout", rel.NakTimeout, &conf.NakTimeout},
	}
	for _, d := range durations {
		if dErr := parseDuration(d.name, d.s, d.dst); dErr != nil {
			err = multierror.Append(err, dErr)
		}
	}
	if err != nil {
		return
	}

	err = conf.Validate()
	return
}

// parsePeers of the Peer-configuration blocks.
func parsePeers(peers []peerConf) (remotes []msgs.PeerId, active []bool, err error) {
	for _, peer := range peers {
		remote, peerErr := msgs.ParsePeerId(peer.PeerId)
		if peerErr != nil {
			err = multierror.Append(err, peerErr)
			continue
		}

		remotes = append(remotes, remote)
		active = append(active, peer.Active)
	}
	return
}

// parseDaemon creates the daemon based on the given TOML configuration.
func parseDaemon(filename string) (d *daemon, err error) {
	var conf tomlConfig
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	parseLogging(conf.Logging)

	if conf.Core.PeerId == "" {
		err = fmt.Errorf("core.peer-id is empty")
		return
	}
	local, err := msgs.ParsePeerId(conf.Core.PeerId)
	if err != nil {
		return
	}

	linkConf, err := parseLinkConfig(conf.Core, conf.Reliable)
	if err != nil {
		return
	}

	remotes, active, err := parsePeers(conf.Peer)
	if err != nil {
		return
	}

	if conf.Socket.Group == "" {
		err = fmt.Errorf("socket.group is empty")
		return
	}
	socket, err := multicast.NewMulticastSocket(multicast.SocketConfig{
		Group:         conf.Socket.Group,
		Interface:     conf.Socket.Interface,
		TTL:           conf.Socket.TTL,
		Loopback:      conf.Socket.Loopback,
		ReceiveBuffer: conf.Socket.ReceiveBuffer,
	})
	if err != nil {
		return
	}

	d, err = newDaemon(local, linkConf, socket, conf.Core.QueueSize, os.Stdout)
	if err != nil {
		_ = socket.Close()
		return
	}

	for i, remote := range remotes {
		if obtainErr := d.link.ObtainSession(remote, active[i]); obtainErr != nil {
			log.WithFields(log.Fields{
				"peer":  remote,
				"error": obtainErr,
			}).Warn("Failed to obtain a session for a peer")
		}
	}

	if conf.Rest.Listen != "" {
		d.startRest(conf.Rest.Listen)
	}

	if conf.Core.Stdin {
		go d.publishStdin()
	}

	return
}
