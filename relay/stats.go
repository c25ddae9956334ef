package relay

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ystepanoff/mdrelay/internal/util"
)

// Stats counts what a controller has done since it was created. Counters
// may be read from other goroutines while the controller runs.
type Stats struct {
	Framed    atomic.Int64 // complete commands read from the serial input
	Sent      atomic.Int64 // commands acknowledged by the peer
	Failed    atomic.Int64 // commands dropped after the retry budget
	Overflows atomic.Int64 // oversized commands discarded by the framer
	Received  atomic.Int64 // commands written to the serial output
	Ignored   atomic.Int64 // datagrams from nodes other than the peer
}

func (s *Stats) String() string {
	return fmt.Sprintf("framed=%d sent=%d failed=%d overflow=%d received=%d ignored=%d",
		s.Framed.Load(),
		s.Sent.Load(),
		s.Failed.Load(),
		s.Overflows.Load(),
		s.Received.Load(),
		s.Ignored.Load(),
	)
}

// StartStatsReporter logs s every interval while it changes. It stops when
// ctx is cancelled.
func StartStatsReporter(ctx context.Context, s *Stats, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prev string
		for {
			select {
			case <-ticker.C:
				cur := s.String()
				if cur != prev {
					util.LogInfo("[Stats] %s", cur)
					prev = cur
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
