package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lrstanley/go-ytdlp"
	"github.com/samber/lo"

	"github.com/denisAlshanov/mediarelay/internal/config"
)

// YtdlpBackend shells out to yt-dlp for metadata only.
type YtdlpBackend struct {
	executable  string
	proxies     []string
	autoInstall bool
}

func NewYtdlpBackend(cfg config.ExtractConfig) *YtdlpBackend {
	return &YtdlpBackend{
		executable:  cfg.YtdlpPath,
		proxies:     cfg.YtdlpProxies,
		autoInstall: cfg.YtdlpAutoInstall,
	}
}

func (b *YtdlpBackend) Name() string {
	return "yt-dlp"
}

func (b *YtdlpBackend) Supports(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

// Prepare downloads a yt-dlp binary when auto-install is enabled and no
// executable path is configured.
func (b *YtdlpBackend) Prepare(ctx context.Context) error {
	if !b.autoInstall || b.executable != "" {
		return nil
	}
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("failed to install yt-dlp: %w", err)
	}
	return nil
}

func (b *YtdlpBackend) Fetch(ctx context.Context, rawURL string) (*RawInfo, error) {
	dl := ytdlp.New().
		SkipDownload().
		PrintJSON().
		NoPlaylist()

	if b.executable != "" {
		dl = dl.SetExecutable(b.executable)
	}
	if proxy := b.proxyFor(); proxy != "" {
		dl = dl.Proxy(proxy)
	}

	result, err := dl.Run(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w", err)
	}

	return parseYtdlpOutput(result.Stdout)
}

// proxyFor picks a proxy at random for one invocation, or "" when none are
// configured.
func (b *YtdlpBackend) proxyFor() string {
	return lo.Sample(b.proxies)
}

type ytdlpFormat struct {
	URL            string            `json:"url"`
	Ext            string            `json:"ext"`
	VCodec         string            `json:"vcodec"`
	ACodec         string            `json:"acodec"`
	Height         *int              `json:"height"`
	TBR            *float64          `json:"tbr"`
	ABR            *float64          `json:"abr"`
	VBR            *float64          `json:"vbr"`
	FileSize       *uint64           `json:"filesize"`
	FileSizeApprox *uint64           `json:"filesize_approx"`
	Protocol       string            `json:"protocol"`
	HTTPHeaders    map[string]string `json:"http_headers"`
}

type ytdlpInfo struct {
	Title     string        `json:"title"`
	Thumbnail string        `json:"thumbnail"`
	Duration  *float64      `json:"duration"`
	URL       string        `json:"url"`
	Formats   []ytdlpFormat `json:"formats"`
}

// parseYtdlpOutput reads the last JSON line yt-dlp printed.
func parseYtdlpOutput(stdout string) (*RawInfo, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	var payload string
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); strings.HasPrefix(line, "{") {
			payload = line
			break
		}
	}
	if payload == "" {
		return nil, fmt.Errorf("yt-dlp produced no metadata")
	}

	var info ytdlpInfo
	if err := json.Unmarshal([]byte(payload), &info); err != nil {
		return nil, fmt.Errorf("failed to decode yt-dlp metadata: %w", err)
	}

	raw := &RawInfo{
		Title:     info.Title,
		Thumbnail: info.Thumbnail,
		URL:       info.URL,
	}
	if info.Duration != nil {
		raw.Duration = *info.Duration
	}

	for _, f := range info.Formats {
		if !directProtocol(f.Protocol) {
			continue
		}
		rf := RawFormat{
			URL:        f.URL,
			Ext:        f.Ext,
			VideoCodec: codec(f.VCodec),
			AudioCodec: codec(f.ACodec),
			Headers:    f.HTTPHeaders,
		}
		if f.Height != nil {
			rf.Height = *f.Height
		}
		switch {
		case f.TBR != nil:
			rf.BitrateKbps = *f.TBR
		case f.ABR != nil && f.VBR != nil:
			rf.BitrateKbps = *f.ABR + *f.VBR
		case f.ABR != nil:
			rf.BitrateKbps = *f.ABR
		case f.VBR != nil:
			rf.BitrateKbps = *f.VBR
		}
		switch {
		case f.FileSize != nil:
			rf.Size = f.FileSize
		case f.FileSizeApprox != nil:
			rf.Size = f.FileSizeApprox
		}
		raw.Formats = append(raw.Formats, rf)
	}

	return raw, nil
}

// codec maps yt-dlp's "none" marker to an empty string.
func codec(value string) string {
	if value == "none" {
		return ""
	}
	return value
}

// directProtocol excludes manifest-based formats that cannot be fetched as
// one file.
func directProtocol(protocol string) bool {
	switch protocol {
	case "", "http", "https":
		return true
	default:
		return false
	}
}
