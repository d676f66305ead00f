package youtube

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"

	"github.com/denisAlshanov/mediarelay/internal/services/extractor"
)

var (
	youtubeURLPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^https?://(www\.|m\.|music\.)?youtube\.com/watch\?(.*&)?v=[\w-]+`),
		regexp.MustCompile(`^https?://(www\.|m\.)?youtube\.com/(embed|v|shorts|live)/[\w-]+`),
		regexp.MustCompile(`^https?://youtu\.be/[\w-]+`),
	}
	videoIDPattern = regexp.MustCompile(`(?:youtube\.com/(?:watch\?(?:.*&)?v=|embed/|v/|shorts/|live/)|youtu\.be/)([a-zA-Z0-9_-]{11})`)
)

// Client is a metadata backend built on the kkdai YouTube client.
type Client struct {
	client videoSource
}

// NewClient creates a new YouTube client
func NewClient(timeout time.Duration) *Client {
	httpClient := &http.Client{
		Timeout: timeout,
	}

	return &Client{
		client: &youtube.Client{HTTPClient: httpClient},
	}
}

func (c *Client) Name() string {
	return "youtube"
}

// Supports checks if the provided URL is a YouTube video URL
func (c *Client) Supports(rawURL string) bool {
	return IsYouTubeURL(rawURL)
}

// IsYouTubeURL checks if the provided URL is a YouTube video URL
func IsYouTubeURL(rawURL string) bool {
	for _, pattern := range youtubeURLPatterns {
		if pattern.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// ParseVideoID extracts the 11-character video ID from a YouTube URL
func ParseVideoID(rawURL string) (string, error) {
	matches := videoIDPattern.FindStringSubmatch(rawURL)
	if len(matches) > 1 {
		return matches[1], nil
	}
	return "", fmt.Errorf("could not extract video ID from YouTube URL: %s", rawURL)
}

// Fetch retrieves video metadata and resolves a direct URL for every format.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*extractor.RawInfo, error) {
	videoID, err := ParseVideoID(rawURL)
	if err != nil {
		return nil, err
	}

	video, err := c.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to get video info: %w", err)
	}

	info := &extractor.RawInfo{
		Title:     video.Title,
		Thumbnail: bestThumbnail(video.Thumbnails),
		Duration:  video.Duration.Seconds(),
	}

	for i := range video.Formats {
		format := &video.Formats[i]

		streamURL := format.URL
		if streamURL == "" {
			// ciphered formats need the player to sign them
			streamURL, err = c.client.GetStreamURLContext(ctx, video, format)
			if err != nil {
				continue
			}
		}

		info.Formats = append(info.Formats, toRawFormat(format, streamURL))
	}

	if len(info.Formats) == 0 {
		return nil, fmt.Errorf("no playable formats for video %s", videoID)
	}

	return info, nil
}

func toRawFormat(format *youtube.Format, streamURL string) extractor.RawFormat {
	mediaType, params, err := mime.ParseMediaType(format.MimeType)
	if err != nil {
		mediaType = format.MimeType
	}

	var videoCodec, audioCodec string
	for _, codec := range strings.Split(params["codecs"], ",") {
		codec = strings.TrimSpace(codec)
		switch {
		case codec == "":
		case isAudioCodec(codec):
			audioCodec = codec
		case strings.HasPrefix(mediaType, "video/"):
			videoCodec = codec
		}
	}
	if audioCodec == "" && format.AudioChannels > 0 {
		audioCodec = "unknown"
	}

	raw := extractor.RawFormat{
		URL:        streamURL,
		Ext:        extensionFor(mediaType),
		VideoCodec: videoCodec,
		AudioCodec: audioCodec,
		Height:     format.Height,
	}

	bitrate := format.AverageBitrate
	if bitrate <= 0 {
		bitrate = format.Bitrate
	}
	raw.BitrateKbps = float64(bitrate) / 1000

	if format.ContentLength > 0 {
		size := uint64(format.ContentLength)
		raw.Size = &size
	}

	return raw
}

func isAudioCodec(codec string) bool {
	for _, prefix := range []string{"mp4a", "opus", "vorbis", "ac-3", "ec-3", "flac"} {
		if strings.HasPrefix(codec, prefix) {
			return true
		}
	}
	return false
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case "video/mp4":
		return "mp4"
	case "audio/mp4":
		return "m4a"
	case "video/webm", "audio/webm":
		return "webm"
	case "video/3gpp":
		return "3gp"
	default:
		if _, sub, ok := strings.Cut(mediaType, "/"); ok {
			return sub
		}
		return ""
	}
}

func bestThumbnail(thumbnails youtube.Thumbnails) string {
	var best string
	var bestWidth uint
	for _, thumb := range thumbnails {
		if best == "" || thumb.Width > bestWidth {
			best = thumb.URL
			bestWidth = thumb.Width
		}
	}
	return best
}
