package models

import (
	"fmt"
	"strings"
	"time"
)

// Mode narrows which kinds of media an extraction should return.
type Mode string

const (
	ModeAuto  Mode = "auto"
	ModeVideo Mode = "video"
	ModeAudio Mode = "audio"
)

// ParseMode accepts "", "auto", "video" and "audio" (case-insensitive).
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeVideo:
		return ModeVideo, nil
	case ModeAudio:
		return ModeAudio, nil
	default:
		return "", fmt.Errorf("unsupported mode %q", raw)
	}
}

type MediaKind string

const (
	MediaKindVideo MediaKind = "video"
	MediaKindAudio MediaKind = "audio"
	MediaKindImage MediaKind = "image"
)

// MediaRequest is the immutable input of one extraction call.
type MediaRequest struct {
	SourceURL string
	Mode      Mode
}

// MediaOption is one downloadable rendition. EstimatedSizeBytes is
// best-effort; SizeExact reports whether the backend gave an exact figure.
type MediaOption struct {
	Kind               MediaKind         `json:"type" bson:"kind"`
	Label              string            `json:"label" bson:"label"`
	URL                string            `json:"url" bson:"url"`
	EstimatedSizeBytes *uint64           `json:"filesize" bson:"estimated_size_bytes,omitempty"`
	SizeExact          bool              `json:"filesize_exact" bson:"size_exact"`
	Headers            map[string]string `json:"-" bson:"headers,omitempty"`
}

// ExtractionResult lists options best-first: video by descending resolution,
// then audio.
type ExtractionResult struct {
	Title        string        `json:"title" bson:"title"`
	ThumbnailURL *string       `json:"thumbnail" bson:"thumbnail_url,omitempty"`
	Options      []MediaOption `json:"options" bson:"options"`
	Source       string        `json:"-" bson:"source"`
}

// FilterByMode drops options the mode does not ask for. Images are kept in
// every mode since a page may only offer a still.
func (r *ExtractionResult) FilterByMode(mode Mode) {
	if mode == "" || mode == ModeAuto {
		return
	}
	kept := r.Options[:0]
	for _, opt := range r.Options {
		switch {
		case opt.Kind == MediaKindImage:
			kept = append(kept, opt)
		case mode == ModeVideo && opt.Kind == MediaKindVideo:
			kept = append(kept, opt)
		case mode == ModeAudio && opt.Kind == MediaKindAudio:
			kept = append(kept, opt)
		}
	}
	r.Options = kept
}

// IdentityProfile is one set of outbound request headers. TLSFingerprint is
// empty for the Go default handshake or "chrome" for a browser ClientHello.
type IdentityProfile struct {
	Name           string
	UserAgent      string
	Referer        *string
	ExtraHeaders   map[string]string
	TLSFingerprint string
}

// StreamAttempt records one try of the streaming relay.
type StreamAttempt struct {
	TargetURL    string
	Identity     IdentityProfile
	AttemptIndex uint
	StatusCode   int
	Err          error
}

// StringPtr returns nil for empty strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// API request/response types

type ExtractRequest struct {
	URL  string `json:"url" binding:"required"`
	Mode string `json:"mode"`
}

type ExtractOption struct {
	Type          MediaKind `json:"type"`
	Label         string    `json:"label"`
	URL           string    `json:"url"`
	FileSize      *uint64   `json:"filesize"`
	FileSizeExact bool      `json:"filesize_exact"`
	StreamURL     string    `json:"stream_url,omitempty"`
}

type ExtractResponse struct {
	Status    string          `json:"status"`
	Title     string          `json:"title"`
	Thumbnail *string         `json:"thumbnail"`
	Options   []ExtractOption `json:"options"`
}

type ErrorDetailResponse struct {
	Detail string `json:"detail"`
}

type ArchiveRequest struct {
	Target string  `json:"target" binding:"required"`
	Title  string  `json:"title"`
	Size   *uint64 `json:"size"`
}

type ArchiveResponse struct {
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	Bytes     int64     `json:"bytes"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
