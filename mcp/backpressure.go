// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/prismworks-ai/prism-mcp-go/jsonrpc"
)

// Outbound backpressure watermarks, per spec.md §4.2: once the queue of
// writes in flight on a session exceeds either limit, new sends block until
// both have drained back under outboundLowWatermark of the limit.
const (
	MaxOutboundBytes    = 1 << 20 // 1 MiB
	MaxOutboundMessages = 1024

	outboundLowWatermark = 0.5
)

// outboundQueue tracks the bytes and message count a session has
// "in flight" to its peer — reserved by acquire before the write starts and
// released once it completes — and gates new writes once the hard limit is
// crossed, per spec.md §4.2 and Seed Scenario 5 (§8).
//
// It is a hysteresis gate, not a literal queue: once full it stays full
// (refusing new reservations) until usage falls back under 50% of both
// limits, rather than flapping open the instant a single write completes.
type outboundQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	bytes   int
	inFlight int
	blocked bool
}

func newOutboundQueue() *outboundQueue {
	q := &outboundQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// full reports (and updates) whether the queue is presently over watermark.
// Must be called with q.mu held.
func (q *outboundQueue) full() bool {
	if q.blocked {
		if q.bytes <= int(MaxOutboundBytes*outboundLowWatermark) && q.inFlight <= int(MaxOutboundMessages*outboundLowWatermark) {
			q.blocked = false
		}
		return q.blocked
	}
	if q.bytes > MaxOutboundBytes || q.inFlight > MaxOutboundMessages {
		q.blocked = true
	}
	return q.blocked
}

// acquire reserves room for a msgBytes-sized write, blocking while the queue
// is over watermark. It returns a CodeTooBusy error, without reserving
// anything, if ctx is done before room frees up.
func (q *outboundQueue) acquire(ctx context.Context, msgBytes int) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.full() {
		if err := ctx.Err(); err != nil {
			return &jsonrpc.Error{Code: jsonrpc.CodeTooBusy, Message: "server is too busy: outbound queue is over its backpressure watermark"}
		}
		q.cond.Wait()
	}
	q.bytes += msgBytes
	q.inFlight++
	return nil
}

// release returns the room reserved by a matching acquire call.
func (q *outboundQueue) release(msgBytes int) {
	q.mu.Lock()
	q.bytes -= msgBytes
	q.inFlight--
	q.cond.Broadcast()
	q.mu.Unlock()
}

// wireSize estimates msg's size on the wire by marshaling it, the same
// encoding conn.Write or the session's codec will perform. This is spent
// purely to weigh the backpressure queue; any marshal error here is
// swallowed in favor of a conservative zero-byte estimate; conn.Write will
// surface the real encoding error anyway.
func wireSize(msg jsonrpc.Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0
	}
	return len(data)
}
