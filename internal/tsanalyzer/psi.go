package tsanalyzer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"

	"github.com/asticode/go-astits"
)

// scte35StreamType is the registered stream_type for SCTE-35 splice
// information sections carried in a PMT.
const scte35StreamType astits.StreamType = 0x86

// ProgramInfo is the elementary stream layout announced by PAT/PMT.
type ProgramInfo struct {
	VideoPID   int   `json:"video_pid,omitempty"`
	AudioPIDs  []int `json:"audio_pids,omitempty"`
	SCTE35PIDs []int `json:"scte35_pids,omitempty"`
}

// InspectPrograms demuxes PSI tables from r and classifies the elementary
// streams of the first PMT found. It stops at the first PMT; segment files
// of a single-program HLS stream carry exactly one.
func InspectPrograms(ctx context.Context, r io.Reader) (ProgramInfo, error) {
	var info ProgramInfo

	dmx := astits.NewDemuxer(ctx, bufio.NewReader(r))
	for {
		d, err := dmx.NextData()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) || errors.Is(err, io.EOF) {
				return info, nil
			}
			// Corrupt segments are expected input for a monitor; report
			// whatever was classified before the demuxer gave up.
			return info, nil
		}

		if d.PMT == nil {
			continue
		}

		for _, es := range d.PMT.ElementaryStreams {
			pid := int(es.ElementaryPID)
			switch {
			case es.StreamType.IsVideo():
				if info.VideoPID == 0 {
					info.VideoPID = pid
				}
			case es.StreamType.IsAudio():
				if !containsPID(info.AudioPIDs, pid) {
					info.AudioPIDs = append(info.AudioPIDs, pid)
				}
			case es.StreamType == scte35StreamType:
				if !containsPID(info.SCTE35PIDs, pid) {
					info.SCTE35PIDs = append(info.SCTE35PIDs, pid)
				}
			}
		}
		return info, nil
	}
}

// InspectFile runs InspectPrograms over a segment on disk.
func InspectFile(ctx context.Context, path string) (ProgramInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ProgramInfo{}, err
	}
	defer f.Close()
	return InspectPrograms(ctx, f)
}
