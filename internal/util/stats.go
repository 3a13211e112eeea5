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

// Stats is the process-wide link/ARQ counter set.
var Stats = &stats{}

type stats struct {
	FramesSent   atomic.Int64 // every frame handed to the link, first pass and resends
	FramesResent atomic.Int64 // NAK-driven resends and polls
	FramesRecv   atomic.Int64 // frames read from the link, decodable or not
	FramesBad    atomic.Int64 // undecodable frames
	SendErrors   atomic.Int64 // link send failures
	Feedback     atomic.Int64 // NAK/ACK frames emitted by the receiver
	Completions  atomic.Int64 // completion signals emitted by the receiver
	PacketsSent  atomic.Int64 // transfers confirmed complete by the peer
	PacketsRecv  atomic.Int64 // packets delivered to PacketIO
	PacketsDrop  atomic.Int64 // reassembled packets that failed validation or delivery
	BytesSent    atomic.Int64 // frame bytes written to the link
	BytesRecv    atomic.Int64 // frame bytes read from the link
}

func (s *stats) AddSent(n int) {
	s.FramesSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.FramesRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *stats) AddResent()     { s.FramesResent.Add(1) }
func (s *stats) AddBadFrame()   { s.FramesBad.Add(1) }
func (s *stats) AddSendError()  { s.SendErrors.Add(1) }
func (s *stats) AddFeedback()   { s.Feedback.Add(1) }
func (s *stats) AddCompletion() { s.Completions.Add(1) }
func (s *stats) AddPacketSent() { s.PacketsSent.Add(1) }
func (s *stats) AddPacketRecv() { s.PacketsRecv.Add(1) }
func (s *stats) AddPacketDrop() { s.PacketsDrop.Add(1) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	FramesSent   int64 `json:"frames_sent"`
	FramesResent int64 `json:"frames_resent"`
	FramesRecv   int64 `json:"frames_recv"`
	FramesBad    int64 `json:"frames_bad"`
	SendErrors   int64 `json:"send_errors"`
	Feedback     int64 `json:"feedback_sent"`
	Completions  int64 `json:"completions_sent"`
	PacketsSent  int64 `json:"packets_sent"`
	PacketsRecv  int64 `json:"packets_recv"`
	PacketsDrop  int64 `json:"packets_dropped"`
	BytesSent    int64 `json:"bytes_sent"`
	BytesRecv    int64 `json:"bytes_recv"`
}

// Snapshot loads every counter.
func (s *stats) Snapshot() Snapshot {
	return Snapshot{
		FramesSent:   s.FramesSent.Load(),
		FramesResent: s.FramesResent.Load(),
		FramesRecv:   s.FramesRecv.Load(),
		FramesBad:    s.FramesBad.Load(),
		SendErrors:   s.SendErrors.Load(),
		Feedback:     s.Feedback.Load(),
		Completions:  s.Completions.Load(),
		PacketsSent:  s.PacketsSent.Load(),
		PacketsRecv:  s.PacketsRecv.Load(),
		PacketsDrop:  s.PacketsDrop.Load(),
		BytesSent:    s.BytesSent.Load(),
		BytesRecv:    s.BytesRecv.Load(),
	}
}

// ResendRatio is the share of sent frames that were retransmissions.
func (s Snapshot) ResendRatio() float64 {
	if s.FramesSent == 0 {
		return 0
	}
	return float64(s.FramesResent) / float64(s.FramesSent)
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs link statistics every
// 10 seconds while there is traffic. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		var prev Snapshot
		for {
			select {
			case <-ticker.C:
				cur := Stats.Snapshot()
				if cur.BytesSent != prev.BytesSent || cur.BytesRecv != prev.BytesRecv {
					pterm.DefaultLogger.Info(formatStats(prev, cur))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a fixed-width (8 chars) string,
// for example "99.0   B" or " 1.5 KiB".
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < len(byteUnits)-1 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats renders the delta between two snapshots for the logger.
func formatStats(prev, cur Snapshot) string {
	secs := reportInterval.Seconds()
	return fmt.Sprintf("Out: %s/s | In: %s/s | Pkts: %3d↑ %3d↓ | Resent: %5.1f%%",
		formatBytes(float64(cur.BytesSent-prev.BytesSent)/secs),
		formatBytes(float64(cur.BytesRecv-prev.BytesRecv)/secs),
		cur.PacketsSent-prev.PacketsSent,
		cur.PacketsRecv-prev.PacketsRecv,
		cur.ResendRatio()*100,
	)
}
