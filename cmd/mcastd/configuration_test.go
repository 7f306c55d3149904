// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/dtn7/dtn7-mcast/pkg/multicast"
	"github.com/dtn7/dtn7-mcast/pkg/multicast/msgs"
)

func TestParseLinkConfig(t *testing.T) {
	conf, err := parseLinkConfig(
		coreConf{Reliable: true, SwapBytes: true},
		reliableConf{SynInterval: "100ms", NakDepth: 8, NakTimeout: "1m"})
	if err != nil {
		t.Fatal(err)
	}

	expected := multicast.DefaultConfig()
	expected.SwapBytes = true
	expected.SynInterval = 100 * time.Millisecond
	expected.NakDepth = 8
	expected.NakTimeout = time.Minute

	if conf != expected {
		t.Fatalf("Expected %v, got %v", expected, conf)
	}
}

func TestParseLinkConfigErrors(t *testing.T) {
	_, err := parseLinkConfig(
		coreConf{Reliable: true},
		reliableConf{SynInterval: "soon", NakInterval: "later"})

	var mErr *multierror.Error
	if !errors.As(err, &mErr) {
		t.Fatalf("Expected a multierror, got %v", err)
	} else if l := len(mErr.Errors); l != 2 {
		t.Fatalf("Expected two errors, got %d: %v", l, mErr)
	}

	// NAK timeout below its interval
	if _, err := parseLinkConfig(coreConf{Reliable: true}, reliableConf{NakTimeout: "1ms"}); err == nil {
		t.Fatal("Invalid config was accepted")
	}
}

func TestParsePeers(t *testing.T) {
	remotes, active, err := parsePeers([]peerConf{
		{PeerId: "0x10", Active: true},
		{PeerId: "17"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(remotes) != 2 || remotes[0] != msgs.PeerId(16) || remotes[1] != msgs.PeerId(17) {
		t.Fatalf("Unexpected remotes: %v", remotes)
	} else if !active[0] || active[1] {
		t.Fatalf("Unexpected roles: %v", active)
	}

	if _, _, err := parsePeers([]peerConf{{PeerId: "x"}, {PeerId: ""}}); err == nil {
		t.Fatal("Invalid peers were accepted")
	}
}

func TestParseDaemonErrors(t *testing.T) {
	tests := []struct {
		name string
		conf string
	}{
		{"no peer", "[core]\nreliable = true\n"},
		{"bad peer", "[core]\npeer-id = \"x\"\n"},
		{"bad duration", "[core]\npeer-id = \"1\"\nreliable = true\n[reliable]\nsyn-timeout = \"x\"\n"},
		{"no group", "[core]\npeer-id = \"1\"\n"},
		{"unicast group", "[core]\npeer-id = \"1\"\n[socket]\ngroup = \"127.0.0.1:4000\"\n"},
		{"syntax", "[core\n"},
	}

	dir := t.TempDir()
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			filename := filepath.Join(dir, "mcastd.toml")
			if err := os.WriteFile(filename, []byte(test.conf), 0o600); err != nil {
				t.Fatal(err)
			}

			if d, err := parseDaemon(filename); err == nil {
				_ = d.close()
				t.Fatal("Invalid configuration was accepted")
			}
		})
	}
}
