// SPDX-FileCopyrightText: 2022 The dtn7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sequence provides datagram sequence numbers, inclusive ranges of them and the DisjointSequence, which tracks
// received sequence numbers and the gaps between them.
//
// The DisjointSequence is the base for loss detection: everything up to its cumulative value was seen, everything
// above is either present in one of its islands or missing. Missing ranges are exactly the ranges to be requested
// again from a sender.
//
// There is no support for wrapping sequence numbers.
package sequence
