// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package multicast implements a session layer for datagrams sent to a multicast group.
//
// A DataLink owns one DatagramSocket joined to the group and one Session per remote peer. Sessions are either
// best-effort, delivering everything received once, or reliable. A reliable Session's active side probes its passive
// remote peer with SYN messages until a SYNACK arrives. Afterwards, the passive side reports gaps within the received
// sequence by NAK messages, which the active side repairs from its SendBuffer. Data evicted from a SendBuffer is
// announced by a NAKACK message and reported to the upper layer as unavailable.
//
// All inbound datagrams and every Watchdog callback are handled on a single watchdog.Dispatcher goroutine.
package multicast
