package extractor

// EstimateSize approximates a byte size from a bitrate in kbps and a duration
// in seconds, using 1024 bits per kilobit. It reports false when either input
// is not positive.
func EstimateSize(bitrateKbps, durationSec float64) (uint64, bool) {
	if bitrateKbps <= 0 || durationSec <= 0 {
		return 0, false
	}
	return uint64(bitrateKbps * 1024 * durationSec / 8), true
}
