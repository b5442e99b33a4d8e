package models

import "time"

// TSMetrics accumulates MPEG-TS analysis counters for a stream, following
// the TR 101 290 priority indicators.
type TSMetrics struct {
	PacketCount        int64         `json:"packet_count"`
	SyncByteErrors     int64         `json:"sync_byte_errors"`
	ContinuityErrors   int64         `json:"continuity_errors"`
	TransportErrors    int64         `json:"transport_errors"`
	PIDCounts          map[int]int64 `json:"pid_counts,omitempty"`
	PCRCount           int64         `json:"pcr_count"`
	PCRDiscontinuities int64         `json:"pcr_discontinuities"`
	PATErrors          int64         `json:"pat_errors"`
	PMTErrors          int64         `json:"pmt_errors"`
	NullPacketCount    int64         `json:"null_packet_count"`

	VideoPID  int   `json:"video_pid,omitempty"`
	AudioPIDs []int `json:"audio_pids,omitempty"`

	SCTE35PIDs     []int `json:"scte35_pids,omitempty"`
	SCTE35Messages int64 `json:"scte35_messages"`

	LastUpdated time.Time `json:"last_updated"`
}

// Merge accumulates the counters of one segment analysis into the running
// per-stream totals. PID lists are merged without duplicates.
func (m *TSMetrics) Merge(seg TSMetrics) {
	m.PacketCount += seg.PacketCount
	m.SyncByteErrors += seg.SyncByteErrors
	m.ContinuityErrors += seg.ContinuityErrors
	m.TransportErrors += seg.TransportErrors
	m.PCRCount += seg.PCRCount
	m.PCRDiscontinuities += seg.PCRDiscontinuities
	m.PATErrors += seg.PATErrors
	m.PMTErrors += seg.PMTErrors
	m.NullPacketCount += seg.NullPacketCount
	m.SCTE35Messages += seg.SCTE35Messages

	if m.PIDCounts == nil && len(seg.PIDCounts) > 0 {
		m.PIDCounts = make(map[int]int64, len(seg.PIDCounts))
	}
	for pid, n := range seg.PIDCounts {
		m.PIDCounts[pid] += n
	}

	if seg.VideoPID != 0 {
		m.VideoPID = seg.VideoPID
	}
	m.AudioPIDs = mergePIDs(m.AudioPIDs, seg.AudioPIDs)
	m.SCTE35PIDs = mergePIDs(m.SCTE35PIDs, seg.SCTE35PIDs)

	m.LastUpdated = seg.LastUpdated
}

func mergePIDs(dst, src []int) []int {
	for _, pid := range src {
		found := false
		for _, have := range dst {
			if have == pid {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, pid)
		}
	}
	return dst
}
