// Package progress defines the build-progress observer collaborator and a
// terminal implementation of it. Per spec §1 this collaborator is external
// to the core; the build pipeline only depends on the Reporter interface.
package progress

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Reporter observes build progress. ShardDone is called once per shard,
// in completion order (which, per the ordered pipeline contract, is also
// submission order). Done is called once, after the last shard, and only
// when the build succeeds.
type Reporter interface {
	ShardDone(prefix20 uint32, fresh bool)
	Done(total uint32)
}

// Noop discards all progress events.
type Noop struct{}

func (Noop) ShardDone(uint32, bool) {}
func (Noop) Done(uint32)            {}

// totalShards is the number of 20-bit prefixes the builder iterates over.
const totalShards = 1 << 20

// Terminal renders a single updating line to w: a shard counter and a
// running count of shards served from cache (not-modified) versus fetched
// fresh.
type Terminal struct {
	w      io.Writer
	done   atomic.Uint32
	fresh  atomic.Uint32
	reused atomic.Uint32
	every  uint32
}

// NewTerminal returns a Terminal reporter that writes to w, redrawing its
// line every `every` completed shards (use 1 for every shard; a larger
// value avoids flooding a non-interactive log).
func NewTerminal(w io.Writer, every uint32) *Terminal {
	if every == 0 {
		every = 1
	}

	return &Terminal{w: w, every: every}
}

// ShardDone implements Reporter.
func (t *Terminal) ShardDone(_ uint32, fresh bool) {
	done := t.done.Add(1)

	if fresh {
		t.fresh.Add(1)
	} else {
		t.reused.Add(1)
	}

	if done%t.every == 0 || done == totalShards {
		fmt.Fprintf(t.w, "\rshards %d/%d (fresh %d, cached %d)",
			done, totalShards, t.fresh.Load(), t.reused.Load())
	}
}

// Done implements Reporter.
func (t *Terminal) Done(total uint32) {
	fmt.Fprintf(t.w, "\rshards %d/%d (fresh %d, cached %d) — %d entries\n",
		t.done.Load(), totalShards, t.fresh.Load(), t.reused.Load(), total)
}
