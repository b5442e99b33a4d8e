// Package metrics provides pure segment metric calculators and rolling
// window statistics over recent segments.
package metrics

import "math"

const (
	bitsPerByte = 8
	megabit     = 1_000_000
	mebibyte    = 1024 * 1024
)

// round3 rounds to three decimal places, half away from zero.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Bitrate returns the actual bitrate of a segment in Mbps, rounded to three
// decimals. Returns 0 when duration is not positive.
func Bitrate(sizeBytes int64, durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	return round3(float64(sizeBytes) * bitsPerByte / durationSeconds / megabit)
}

// DownloadSpeed returns the observed throughput in Mbps given the download
// wall time in milliseconds, rounded to three decimals. Returns 0 when the
// download time is not positive.
func DownloadSpeed(sizeBytes int64, downloadTimeMillis float64) float64 {
	seconds := downloadTimeMillis / 1000
	if seconds <= 0 {
		return 0
	}
	return round3(float64(sizeBytes) * bitsPerByte / seconds / megabit)
}

// BytesToMB converts bytes to mebibytes, rounded to three decimals.
func BytesToMB(sizeBytes int64) float64 {
	return round3(float64(sizeBytes) / mebibyte)
}
