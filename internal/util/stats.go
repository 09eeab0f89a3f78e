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

// Stats is the process-wide packet/traffic counter.
var Stats = &stats{}

type stats struct {
	Delivered atomic.Int64 // packets handed to the local client
	Forwarded atomic.Int64 // packets sent on towards another host
	Dropped   atomic.Int64 // packets that could not be delivered or forwarded
	BytesSent atomic.Int64 // cumulative bytes written to links
	BytesRecv atomic.Int64 // cumulative bytes read from links
}

func (s *stats) AddDelivered() { s.Delivered.Add(1) }
func (s *stats) AddForwarded() { s.Forwarded.Add(1) }
func (s *stats) AddDropped()   { s.Dropped.Add(1) }
func (s *stats) AddSent(n int) { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int) { s.BytesRecv.Add(int64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs traffic statistics
// every interval. It stops when ctx is cancelled. Quiet intervals are not
// logged.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		var prevSent, prevRecv, prevDelivered, prevForwarded, prevDropped int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				delivered := Stats.Delivered.Load()
				forwarded := Stats.Forwarded.Load()
				dropped := Stats.Dropped.Load()

				if sent != prevSent || recv != prevRecv || dropped != prevDropped {
					pterm.DefaultLogger.Info(formatStats(
						float64(recv-prevRecv)/secs,
						float64(sent-prevSent)/secs,
						delivered-prevDelivered,
						forwarded-prevForwarded,
						dropped-prevDropped,
					))
				}

				prevSent = sent
				prevRecv = recv
				prevDelivered = delivered
				prevForwarded = forwarded
				prevDropped = dropped

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of one interval for the logger.
func formatStats(inS, outS float64, delivered, forwarded, dropped int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Pkt: %d delivered %d forwarded %d dropped",
		formatBytes(inS),
		formatBytes(outS),
		delivered,
		forwarded,
		dropped,
	)
}
