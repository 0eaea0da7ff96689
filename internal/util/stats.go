package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide relay counter.
var Stats = &stats{}

type stats struct {
	Joins   atomic.Int64 // cumulative count of join frames accepted since process start
	Leaves  atomic.Int64 // cumulative count of member departures since process start
	Relayed atomic.Int64 // cumulative count of signaling frames fanned out
	Dropped atomic.Int64 // cumulative count of frames dropped (malformed, unbound, unknown)
}

func (s *stats) AddJoin()    { s.Joins.Add(1) }
func (s *stats) AddLeave()   { s.Leaves.Add(1) }
func (s *stats) AddRelayed() { s.Relayed.Add(1) }
func (s *stats) AddDropped() { s.Dropped.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs relay statistics
// every 10 seconds. Quiet intervals produce no output. It stops when
// ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevJoins, prevLeaves, prevRelayed, prevDropped int64
		for {
			select {
			case <-ticker.C:
				joins := Stats.Joins.Load()
				leaves := Stats.Leaves.Load()
				relayed := Stats.Relayed.Load()
				dropped := Stats.Dropped.Load()

				dJoins := joins - prevJoins
				dLeaves := leaves - prevLeaves
				dRelayed := relayed - prevRelayed
				dDropped := dropped - prevDropped

				if dJoins > 0 || dLeaves > 0 || dRelayed > 0 || dDropped > 0 {
					pterm.DefaultLogger.Info(formatStats(dJoins, dLeaves, dRelayed, dDropped))
				}

				prevJoins = joins
				prevLeaves = leaves
				prevRelayed = relayed
				prevDropped = dropped

			case <-ctx.Done():
				return
			}
		}
	}()
}

// formatStats returns a formatted string of the interval deltas for display in the logger.
func formatStats(joins, leaves, relayed, dropped int64) string {
	return fmt.Sprintf("Joins: %2d | Leaves: %2d | Relayed: %4d | Dropped: %3d",
		joins,
		leaves,
		relayed,
		dropped,
	)
}
