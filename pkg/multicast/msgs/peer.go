// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"fmt"
	"strconv"
)

// PeerId identifies a participant on a multicast group. It is stamped into each datagram's Header and addresses the
// control submessages.
type PeerId uint64

// ParsePeerId from a decimal or 0x prefixed hexadecimal string.
func ParsePeerId(s string) (PeerId, error) {
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid peer id %q: %w", s, err)
	}
	return PeerId(n), nil
}

func (p PeerId) String() string {
	return fmt.Sprintf("%#016x", uint64(p))
}
