package extractor

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/denisAlshanov/mediarelay/internal/models"
)

type candidate struct {
	format RawFormat
	size   uint64
	known  bool
	exact  bool
}

// Normalize turns a backend format list into ranked options: one muxed mp4
// per height, highest first, then the single best audio-only stream. When no
// format qualifies it falls back to info.URL. It reports false when there is
// nothing to offer.
func Normalize(info *RawInfo, mode models.Mode) (*models.ExtractionResult, bool) {
	if info == nil {
		return nil, false
	}

	buckets := make(map[int]candidate)
	var audio *candidate

	for _, f := range info.Formats {
		if f.URL == "" {
			continue
		}
		c := sized(f, info.Duration)

		switch {
		case isMuxedMP4(f):
			if f.Height <= 0 {
				continue
			}
			if cur, ok := buckets[f.Height]; !ok || c.size > cur.size {
				buckets[f.Height] = c
			}
		case isAudioOnly(f):
			if audio == nil || betterAudio(c, *audio) {
				picked := c
				audio = &picked
			}
		}
	}

	var options []models.MediaOption

	if mode != models.ModeAudio {
		videos := lo.Values(buckets)
		slices.SortFunc(videos, func(a, b candidate) int {
			return cmp.Compare(b.format.Height, a.format.Height)
		})
		for _, c := range videos {
			options = append(options, toOption(c, models.MediaKindVideo, fmt.Sprintf("%dp", c.format.Height)))
		}
	}

	if mode != models.ModeVideo && audio != nil {
		options = append(options, toOption(*audio, models.MediaKindAudio, audioLabel(audio.format.BitrateKbps)))
	}

	if len(options) == 0 {
		if info.URL == "" {
			return nil, false
		}
		kind := models.MediaKindVideo
		if mode == models.ModeAudio {
			kind = models.MediaKindAudio
		}
		options = []models.MediaOption{{Kind: kind, Label: "Best", URL: info.URL}}
	}

	return &models.ExtractionResult{
		Title:        strings.TrimSpace(info.Title),
		ThumbnailURL: models.StringPtr(info.Thumbnail),
		Options:      options,
	}, true
}

func isMuxedMP4(f RawFormat) bool {
	return f.VideoCodec != "" && f.AudioCodec != "" && strings.EqualFold(f.Ext, "mp4")
}

func isAudioOnly(f RawFormat) bool {
	return f.VideoCodec == "" && f.AudioCodec != ""
}

func sized(f RawFormat, duration float64) candidate {
	if f.Size != nil && *f.Size > 0 {
		return candidate{format: f, size: *f.Size, known: true, exact: true}
	}
	if est, ok := EstimateSize(f.BitrateKbps, duration); ok {
		return candidate{format: f, size: est, known: true}
	}
	return candidate{format: f}
}

// betterAudio orders by bitrate, then size, then prefers m4a.
func betterAudio(a, b candidate) bool {
	if a.format.BitrateKbps != b.format.BitrateKbps {
		return a.format.BitrateKbps > b.format.BitrateKbps
	}
	if a.size != b.size {
		return a.size > b.size
	}
	return strings.EqualFold(a.format.Ext, "m4a") && !strings.EqualFold(b.format.Ext, "m4a")
}

func audioLabel(bitrateKbps float64) string {
	if bitrateKbps <= 0 {
		return "Audio"
	}
	return fmt.Sprintf("Audio %dkbps", int(math.Round(bitrateKbps)))
}

func toOption(c candidate, kind models.MediaKind, label string) models.MediaOption {
	opt := models.MediaOption{
		Kind:      kind,
		Label:     label,
		URL:       c.format.URL,
		SizeExact: c.exact,
		Headers:   c.format.Headers,
	}
	if c.known {
		size := c.size
		opt.EstimatedSizeBytes = &size
	}
	return opt
}
