package extractor

import "context"

// RawFormat is one entry of a backend's format list. An empty codec means
// the stream is absent. BitrateKbps is 0 when unknown.
type RawFormat struct {
	URL         string
	Ext         string
	VideoCodec  string
	AudioCodec  string
	Height      int
	BitrateKbps float64
	Size        *uint64
	Headers     map[string]string
}

// RawInfo is the metadata a backend returns for one URL. URL is the best
// direct link the backend picked on its own, if any.
type RawInfo struct {
	Title     string
	Thumbnail string
	Duration  float64
	URL       string
	Formats   []RawFormat
}

// MetadataBackend resolves a page URL into raw metadata.
type MetadataBackend interface {
	Name() string
	Supports(rawURL string) bool
	Fetch(ctx context.Context, rawURL string) (*RawInfo, error)
}
