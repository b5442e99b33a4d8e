package hls

import (
	"fmt"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
)

// Validate runs a strict RFC 8216 parse over playlist content. The tolerant
// parser accepts manifests that a compliant client would reject; a strict
// failure on content the tolerant parser accepted is recorded as a manifest
// error against the stream's health.
func Validate(content []byte) error {
	if _, err := playlist.Unmarshal(content); err != nil {
		return fmt.Errorf("strict playlist validation: %w", err)
	}
	return nil
}
