package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/denisAlshanov/mediarelay/internal/models"
	"github.com/denisAlshanov/mediarelay/internal/services/extractor"
	"github.com/denisAlshanov/mediarelay/internal/services/relaypool"
	"github.com/denisAlshanov/mediarelay/internal/services/youtube"
)

type pipedStream struct {
	URL           string `json:"url"`
	MimeType      string `json:"mimeType"`
	Codec         string `json:"codec"`
	VideoOnly     bool   `json:"videoOnly"`
	Bitrate       int    `json:"bitrate"`
	Height        int    `json:"height"`
	ContentLength int64  `json:"contentLength"`
}

type pipedResponse struct {
	Title        string        `json:"title"`
	ThumbnailURL string        `json:"thumbnailUrl"`
	Duration     float64       `json:"duration"`
	VideoStreams []pipedStream `json:"videoStreams"`
	AudioStreams []pipedStream `json:"audioStreams"`
	Error        string        `json:"error"`
}

// PipedBackend reads YouTube stream lists from a piped API instance.
type PipedBackend struct {
	client *http.Client
}

func NewPipedBackend(client *http.Client) *PipedBackend {
	return &PipedBackend{client: client}
}

func (b *PipedBackend) Resolve(ctx context.Context, inst relaypool.Instance, rawURL string, mode models.Mode) (*models.ExtractionResult, error) {
	videoID, err := youtube.ParseVideoID(rawURL)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(inst.Endpoint, "/") + "/streams/" + url.PathEscape(videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piped request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("piped returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading piped response: %w", err)
	}

	var pr pipedResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("malformed piped response: %w", err)
	}
	if pr.Error != "" {
		return nil, fmt.Errorf("piped error: %s", pr.Error)
	}

	result, ok := extractor.Normalize(pipedRawInfo(&pr), mode)
	if !ok {
		return nil, ErrNoMedia
	}
	return result, nil
}

func pipedRawInfo(pr *pipedResponse) *extractor.RawInfo {
	info := &extractor.RawInfo{
		Title:     pr.Title,
		Thumbnail: pr.ThumbnailURL,
		Duration:  pr.Duration,
	}

	for _, s := range pr.VideoStreams {
		f := pipedFormat(s)
		f.VideoCodec = s.Codec
		if f.VideoCodec == "" {
			f.VideoCodec = "unknown"
		}
		if !s.VideoOnly {
			f.AudioCodec = "unknown"
		}
		info.Formats = append(info.Formats, f)
	}

	for _, s := range pr.AudioStreams {
		f := pipedFormat(s)
		f.AudioCodec = s.Codec
		if f.AudioCodec == "" {
			f.AudioCodec = "unknown"
		}
		info.Formats = append(info.Formats, f)
	}

	return info
}

func pipedFormat(s pipedStream) extractor.RawFormat {
	f := extractor.RawFormat{
		URL:         s.URL,
		Height:      s.Height,
		BitrateKbps: float64(s.Bitrate) / 1000,
	}
	if mediaType, _, err := mime.ParseMediaType(s.MimeType); err == nil {
		switch mediaType {
		case "video/mp4":
			f.Ext = "mp4"
		case "audio/mp4":
			f.Ext = "m4a"
		case "video/webm", "audio/webm":
			f.Ext = "webm"
		}
	}
	if s.ContentLength > 0 {
		size := uint64(s.ContentLength)
		f.Size = &size
	}
	return f
}
