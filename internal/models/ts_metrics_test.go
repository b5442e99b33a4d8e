package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTSMetricsMerge(t *testing.T) {
	now := time.Now().UTC()
	total := TSMetrics{
		PacketCount:      100,
		ContinuityErrors: 1,
		PIDCounts:        map[int]int64{0x100: 90, 0x1FFF: 10},
		AudioPIDs:        []int{0x101},
	}

	total.Merge(TSMetrics{
		PacketCount:      50,
		ContinuityErrors: 2,
		SyncByteErrors:   1,
		PIDCounts:        map[int]int64{0x100: 50},
		VideoPID:         0x100,
		AudioPIDs:        []int{0x101, 0x102},
		SCTE35PIDs:       []int{0x1F0},
		SCTE35Messages:   1,
		LastUpdated:      now,
	})

	assert.Equal(t, int64(150), total.PacketCount)
	assert.Equal(t, int64(3), total.ContinuityErrors)
	assert.Equal(t, int64(1), total.SyncByteErrors)
	assert.Equal(t, int64(140), total.PIDCounts[0x100])
	assert.Equal(t, int64(10), total.PIDCounts[0x1FFF])
	assert.Equal(t, 0x100, total.VideoPID)
	assert.ElementsMatch(t, []int{0x101, 0x102}, total.AudioPIDs)
	assert.Equal(t, []int{0x1F0}, total.SCTE35PIDs)
	assert.Equal(t, int64(1), total.SCTE35Messages)
	assert.Equal(t, now, total.LastUpdated)
}

func TestTSMetricsMergeIntoEmpty(t *testing.T) {
	var total TSMetrics
	total.Merge(TSMetrics{PacketCount: 7, PIDCounts: map[int]int64{0: 1}})

	assert.Equal(t, int64(7), total.PacketCount)
	assert.Equal(t, int64(1), total.PIDCounts[0])
}

func TestWebhookWantsEvent(t *testing.T) {
	all := WebhookConfig{}
	assert.True(t, all.WantsEvent("alert_raised"))

	scoped := WebhookConfig{Events: []string{"alert_raised", "stream_offline"}}
	assert.True(t, scoped.WantsEvent("stream_offline"))
	assert.False(t, scoped.WantsEvent("segment_downloaded"))
}
