package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/denisAlshanov/mediarelay/internal/models"
	"github.com/denisAlshanov/mediarelay/internal/services/relaypool"
)

const maxRelayResponseBytes = 2 << 20

type cobaltRequest struct {
	URL          string `json:"url"`
	DownloadMode string `json:"downloadMode,omitempty"`
}

type cobaltPickerItem struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Thumb string `json:"thumb"`
}

type cobaltResponse struct {
	Status   string             `json:"status"`
	URL      string             `json:"url"`
	Filename string             `json:"filename"`
	Picker   []cobaltPickerItem `json:"picker"`
	Error    *struct {
		Code string `json:"code"`
	} `json:"error"`
}

// CobaltBackend speaks the cobalt JSON API.
type CobaltBackend struct {
	client *http.Client
}

func NewCobaltBackend(client *http.Client) *CobaltBackend {
	return &CobaltBackend{client: client}
}

func (b *CobaltBackend) Resolve(ctx context.Context, inst relaypool.Instance, rawURL string, mode models.Mode) (*models.ExtractionResult, error) {
	payload := cobaltRequest{URL: rawURL}
	if mode == models.ModeAudio {
		payload.DownloadMode = "audio"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cobalt request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(inst.Endpoint, "/")+"/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if inst.APIKey != "" {
		req.Header.Set("Authorization", "Api-Key "+inst.APIKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cobalt request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading cobalt response: %w", err)
	}

	var cr cobaltResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return nil, fmt.Errorf("malformed cobalt response (status %d): %w", resp.StatusCode, err)
	}

	return parseCobaltResponse(&cr)
}

func parseCobaltResponse(cr *cobaltResponse) (*models.ExtractionResult, error) {
	switch cr.Status {
	case "tunnel", "redirect":
		if cr.URL == "" {
			return nil, fmt.Errorf("cobalt %s response without url", cr.Status)
		}
		kind := kindFromFilename(cr.Filename)
		return &models.ExtractionResult{
			Title:   strings.TrimSuffix(cr.Filename, path.Ext(cr.Filename)),
			Options: []models.MediaOption{{Kind: kind, Label: labelFor(kind), URL: cr.URL}},
		}, nil

	case "picker":
		if len(cr.Picker) == 0 {
			return nil, fmt.Errorf("cobalt picker response without items")
		}
		item := cr.Picker[0]
		for _, candidate := range cr.Picker {
			if candidate.Type == "video" && candidate.URL != "" {
				item = candidate
				break
			}
		}
		if item.URL == "" {
			return nil, fmt.Errorf("cobalt picker item without url")
		}
		kind := models.MediaKindVideo
		if item.Type == "photo" || item.Type == "gif" {
			kind = models.MediaKindImage
		}
		return &models.ExtractionResult{
			ThumbnailURL: models.StringPtr(item.Thumb),
			Options:      []models.MediaOption{{Kind: kind, Label: labelFor(kind), URL: item.URL}},
		}, nil

	case "error":
		code := "unknown"
		if cr.Error != nil && cr.Error.Code != "" {
			code = cr.Error.Code
		}
		if isContentError(code) {
			return nil, fmt.Errorf("cobalt error %s: %w", code, ErrNoMedia)
		}
		return nil, fmt.Errorf("cobalt error: %s", code)

	default:
		return nil, fmt.Errorf("unsupported cobalt status %q", cr.Status)
	}
}

// isContentError reports whether a cobalt error code describes the requested
// post or link rather than the instance itself.
func isContentError(code string) bool {
	for _, prefix := range []string{"error.api.content.", "error.api.link.", "error.api.fetch.empty"} {
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}

func kindFromFilename(filename string) models.MediaKind {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(filename), ".")) {
	case "mp3", "m4a", "ogg", "opus", "wav", "weba", "aac":
		return models.MediaKindAudio
	case "jpg", "jpeg", "png", "gif", "webp", "avif":
		return models.MediaKindImage
	default:
		return models.MediaKindVideo
	}
}

func labelFor(kind models.MediaKind) string {
	switch kind {
	case models.MediaKindAudio:
		return "Audio"
	case models.MediaKindImage:
		return "Image"
	default:
		return "Best"
	}
}
