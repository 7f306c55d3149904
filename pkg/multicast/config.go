// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package multicast

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Config of a DataLink and its Sessions.
type Config struct {
	// Reliable selects reliable Sessions with handshake and repair instead of best-effort Sessions.
	Reliable bool

	// SynBackoff is the factor each further SYN's interval is multiplied by.
	SynBackoff float64
	// SynInterval is the delay between the first and the second SYN.
	SynInterval time.Duration
	// SynTimeout after which an active Session stops probing for a SYNACK.
	SynTimeout time.Duration

	// NakDepth is the amount of sent datagrams retained for repair.
	NakDepth int
	// NakInterval is the base interval for scanning for gaps; a random jitter of up to the same duration is added.
	NakInterval time.Duration
	// NakTimeout after which an unanswered NAK's gaps are considered lost.
	NakTimeout time.Duration

	// SwapBytes encodes control payloads in network byte order instead of little endian.
	SwapBytes bool
}

// DefaultConfig returns a reliable Config with the established multicast transport defaults.
func DefaultConfig() Config {
	return Config{
		Reliable: true,

		SynBackoff:  2.0,
		SynInterval: 250 * time.Millisecond,
		SynTimeout:  30 * time.Second,

		NakDepth:    32,
		NakInterval: 500 * time.Millisecond,
		NakTimeout:  30 * time.Second,

		SwapBytes: false,
	}
}

// Validate reports every invalid field.
func (c Config) Validate() (err error) {
	if !c.Reliable {
		return nil
	}

	if c.SynBackoff < 1 {
		err = multierror.Append(err, fmt.Errorf("syn backoff %f is below 1", c.SynBackoff))
	}
	if c.SynInterval <= 0 {
		err = multierror.Append(err, fmt.Errorf("syn interval %v is not positive", c.SynInterval))
	}
	if c.SynTimeout < c.SynInterval {
		err = multierror.Append(err, fmt.Errorf("syn timeout %v is shorter than the syn interval %v", c.SynTimeout, c.SynInterval))
	}
	if c.NakDepth <= 0 {
		err = multierror.Append(err, fmt.Errorf("nak depth %d is not positive", c.NakDepth))
	}
	if c.NakInterval <= 0 {
		err = multierror.Append(err, fmt.Errorf("nak interval %v is not positive", c.NakInterval))
	}
	if c.NakTimeout < c.NakInterval {
		err = multierror.Append(err, fmt.Errorf("nak timeout %v is shorter than the nak interval %v", c.NakTimeout, c.NakInterval))
	}

	return
}
