// Package tsanalyzer inspects MPEG-TS segment files against the TR 101 290
// priority indicators: sync loss, transport errors, continuity errors, PAT
// validity, PCR discontinuities, and SCTE-35 message presence.
//
// The packet walk is deliberately hand-rolled: a monitoring probe has to
// count and skip corrupt packets that a decoding demuxer would reject.
package tsanalyzer

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/streamwatch/streamwatch/internal/models"
)

const (
	// PacketSize is the fixed MPEG-TS packet length in bytes.
	PacketSize = 188
	// SyncByte is the expected first byte of every packet.
	SyncByte = 0x47

	// Well-known PIDs.
	PIDPAT  = 0x0000
	PIDCAT  = 0x0001
	PIDNull = 0x1FFF

	// patTableID is the table_id of a Program Association Table section.
	patTableID = 0x00
	// scte35TableID is the table_id of a splice_info_section.
	scte35TableID = 0xFC

	// pcrJumpLimit flags a PCR discontinuity when the base advances more
	// than two seconds worth of 27MHz ticks between observations.
	pcrJumpLimit = 27_000_000 * 2
)

// header is the decoded 4-byte TS packet header.
type header struct {
	tei           bool
	pusi          bool
	pid           int
	hasAdaptation bool
	hasPayload    bool
	cc            int
}

// ccTracker tracks continuity counter state for one PID.
type ccTracker struct {
	lastCC     int
	errorCount int64
	packets    int64
}

// Analyzer keeps per-PID state across the segments of one stream.
// Safe for concurrent use; segments of the same stream are expected to be
// analyzed in download order for meaningful continuity results.
type Analyzer struct {
	mu            sync.Mutex
	ccTrackers    map[int]*ccTracker
	lastPCR       map[int]int64
	lastPCRPacket map[int]int64
}

// New creates an Analyzer with empty state.
func New() *Analyzer {
	a := &Analyzer{}
	a.Reset()
	return a
}

// Reset clears all per-PID state, for reuse on a new stream.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ccTrackers = make(map[int]*ccTracker)
	a.lastPCR = make(map[int]int64)
	a.lastPCRPacket = make(map[int]int64)
}

// AnalyzeFile analyzes an MPEG-TS segment on disk. An unreadable file yields
// empty metrics, not an error: transient I/O must not stop the pipeline.
func (a *Analyzer) AnalyzeFile(path string) models.TSMetrics {
	f, err := os.Open(path)
	if err != nil {
		return models.TSMetrics{LastUpdated: time.Now().UTC()}
	}
	defer f.Close()
	return a.Analyze(f)
}

// Analyze walks 188-byte packets from r until EOF or a short read.
func (a *Analyzer) Analyze(r io.Reader) models.TSMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	metrics := models.TSMetrics{
		PIDCounts:   make(map[int]int64),
		LastUpdated: time.Now().UTC(),
	}

	packet := make([]byte, PacketSize)
	var packetNum int64

	for {
		if _, err := io.ReadFull(r, packet); err != nil {
			// EOF or trailing partial packet ends the walk.
			break
		}

		packetNum++
		metrics.PacketCount++

		// Sync byte check (priority 1). A desynced packet is counted and
		// skipped; nothing inside it can be trusted.
		if packet[0] != SyncByte {
			metrics.SyncByteErrors++
			continue
		}

		h := parseHeader(packet)

		// Transport error indicator (priority 1).
		if h.tei {
			metrics.TransportErrors++
		}

		metrics.PIDCounts[h.pid]++

		if h.pid == PIDNull {
			metrics.NullPacketCount++
			continue
		}

		// Continuity counter check (priority 1), payload packets only.
		if h.hasPayload && a.checkContinuity(h.pid, h.cc) {
			metrics.ContinuityErrors++
		}

		// PAT validity (priority 2).
		if h.pid == PIDPAT && !validPAT(packet) {
			metrics.PATErrors++
		}

		// PCR tracking in the adaptation field.
		if h.hasAdaptation {
			switch a.checkPCR(packet, h.pid, packetNum) {
			case pcrFound:
				metrics.PCRCount++
			case pcrDiscontinuity:
				metrics.PCRCount++
				metrics.PCRDiscontinuities++
			}
		}

		// SCTE-35 splice_info_section detection.
		if isSCTE35(packet) {
			if !containsPID(metrics.SCTE35PIDs, h.pid) {
				metrics.SCTE35PIDs = append(metrics.SCTE35PIDs, h.pid)
			}
			metrics.SCTE35Messages++
		}
	}

	return metrics
}

// parseHeader decodes the 4-byte TS packet header.
func parseHeader(packet []byte) header {
	return header{
		tei:           packet[1]&0x80 != 0,
		pusi:          packet[1]&0x40 != 0,
		pid:           int(packet[1]&0x1F)<<8 | int(packet[2]),
		hasAdaptation: packet[3]&0x20 != 0,
		hasPayload:    packet[3]&0x10 != 0,
		cc:            int(packet[3] & 0x0F),
	}
}

// checkContinuity reports whether the observed CC is a continuity error.
// A repeated CC is a permitted duplicate, not an error.
func (a *Analyzer) checkContinuity(pid, cc int) bool {
	tracker, ok := a.ccTrackers[pid]
	if !ok {
		a.ccTrackers[pid] = &ccTracker{lastCC: cc}
		return false
	}

	tracker.packets++
	expected := (tracker.lastCC + 1) % 16

	if cc != expected && cc != tracker.lastCC {
		tracker.errorCount++
		tracker.lastCC = cc
		return true
	}

	tracker.lastCC = cc
	return false
}

// validPAT performs a shallow PAT check: a packet starting a section on the
// PAT PID must carry table_id 0x00.
func validPAT(packet []byte) bool {
	if packet[1]&0x40 == 0 {
		return true // continuation packet, nothing to validate
	}

	adaptationLength := 0
	if packet[3]&0x20 != 0 {
		adaptationLength = int(packet[4]) + 1
	}

	payloadStart := 4 + adaptationLength
	if payloadStart >= PacketSize {
		return false
	}

	pointer := int(packet[payloadStart])
	sectionStart := payloadStart + 1 + pointer
	if sectionStart >= PacketSize {
		return false
	}

	return packet[sectionStart] == patTableID
}

type pcrResult int

const (
	noPCR pcrResult = iota
	pcrFound
	pcrDiscontinuity
)

// checkPCR extracts the 33-bit PCR base from the adaptation field, if
// present, and flags backwards jumps and jumps larger than two seconds.
func (a *Analyzer) checkPCR(packet []byte, pid int, packetNum int64) pcrResult {
	adaptationLength := int(packet[4])
	if adaptationLength < 1 {
		return noPCR
	}

	if packet[5]&0x10 == 0 { // PCR flag
		return noPCR
	}
	if adaptationLength < 7 {
		return noPCR
	}

	pcrBase := int64(packet[6])<<25 |
		int64(packet[7])<<17 |
		int64(packet[8])<<9 |
		int64(packet[9])<<1 |
		int64(packet[10]&0x80)>>7

	discontinuity := false
	if last, ok := a.lastPCR[pid]; ok {
		diff := pcrBase - last
		if diff < 0 || diff > pcrJumpLimit {
			discontinuity = true
		}
	}

	a.lastPCR[pid] = pcrBase
	a.lastPCRPacket[pid] = packetNum

	if discontinuity {
		return pcrDiscontinuity
	}
	return pcrFound
}

// isSCTE35 reports whether the packet starts a splice_info_section
// (table_id 0xFC).
func isSCTE35(packet []byte) bool {
	if packet[1]&0x40 == 0 { // PUSI required
		return false
	}

	adaptationLength := 0
	if packet[3]&0x20 != 0 {
		adaptationLength = int(packet[4]) + 1
	}

	payloadStart := 4 + adaptationLength
	if payloadStart >= PacketSize-1 {
		return false
	}

	pointer := int(packet[payloadStart])
	sectionStart := payloadStart + 1 + pointer
	if sectionStart >= PacketSize-1 {
		return false
	}

	return packet[sectionStart] == scte35TableID
}

// ContinuitySummary reports per-PID continuity statistics.
type ContinuitySummary struct {
	Packets   int64   `json:"packets"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
}

// Summary returns the continuity error summary for every tracked PID.
func (a *Analyzer) Summary() map[int]ContinuitySummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	summary := make(map[int]ContinuitySummary, len(a.ccTrackers))
	for pid, tracker := range a.ccTrackers {
		packets := tracker.packets
		if packets == 0 {
			packets = 1
		}
		summary[pid] = ContinuitySummary{
			Packets:   tracker.packets,
			Errors:    tracker.errorCount,
			ErrorRate: float64(tracker.errorCount) / float64(packets) * 100,
		}
	}
	return summary
}

func containsPID(pids []int, pid int) bool {
	for _, p := range pids {
		if p == pid {
			return true
		}
	}
	return false
}
