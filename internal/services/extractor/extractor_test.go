package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/denisAlshanov/mediarelay/internal/config"
	"github.com/denisAlshanov/mediarelay/internal/models"
)

func sizePtr(v uint64) *uint64 {
	return &v
}

type fakeBackend struct {
	name     string
	supports bool
	info     *RawInfo
	err      error
	calls    int
}

func (f *fakeBackend) Name() string                { return f.name }
func (f *fakeBackend) Supports(rawURL string) bool { return f.supports }
func (f *fakeBackend) Fetch(ctx context.Context, rawURL string) (*RawInfo, error) {
	f.calls++
	return f.info, f.err
}

func TestEstimateSize(t *testing.T) {
	testCases := []struct {
		name     string
		bitrate  float64
		duration float64
		expected uint64
		ok       bool
	}{
		{name: "Reference value", bitrate: 1000, duration: 80, expected: 10240000, ok: true},
		{name: "Fractional truncates", bitrate: 1.5, duration: 3, expected: 576, ok: true},
		{name: "Zero bitrate", bitrate: 0, duration: 80},
		{name: "Negative duration", bitrate: 128, duration: -1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := EstimateSize(tc.bitrate, tc.duration)
			if ok != tc.ok || got != tc.expected {
				t.Errorf("EstimateSize(%v, %v) = (%d, %v), want (%d, %v)", tc.bitrate, tc.duration, got, ok, tc.expected, tc.ok)
			}
		})
	}
}

func sampleInfo() *RawInfo {
	return &RawInfo{
		Title:     "Sample",
		Thumbnail: "https://i.example.com/thumb.jpg",
		Duration:  80,
		Formats: []RawFormat{
			{URL: "https://cdn.example.com/480.mp4", Ext: "mp4", VideoCodec: "avc1", AudioCodec: "mp4a", Height: 480, Size: sizePtr(4000)},
			{URL: "https://cdn.example.com/1080.mp4", Ext: "mp4", VideoCodec: "avc1", AudioCodec: "mp4a", Height: 1080, Size: sizePtr(9000)},
			{URL: "https://cdn.example.com/1080-small.mp4", Ext: "mp4", VideoCodec: "avc1", AudioCodec: "mp4a", Height: 1080, Size: sizePtr(100)},
			{URL: "https://cdn.example.com/720.webm", Ext: "webm", VideoCodec: "vp9", AudioCodec: "opus", Height: 720, Size: sizePtr(5000)},
			{URL: "https://cdn.example.com/720-video-only.mp4", Ext: "mp4", VideoCodec: "avc1", Height: 720},
			{URL: "https://cdn.example.com/nohight.mp4", Ext: "mp4", VideoCodec: "avc1", AudioCodec: "mp4a"},
			{URL: "https://cdn.example.com/a.webm", Ext: "webm", AudioCodec: "opus", BitrateKbps: 128},
			{URL: "https://cdn.example.com/a.m4a", Ext: "m4a", AudioCodec: "mp4a", BitrateKbps: 128},
			{URL: "https://cdn.example.com/a-low.m4a", Ext: "m4a", AudioCodec: "mp4a", BitrateKbps: 48},
		},
	}
}

func TestNormalizeOrdering(t *testing.T) {
	result, ok := Normalize(sampleInfo(), models.ModeAuto)
	if !ok {
		t.Fatal("expected options")
	}

	labels := make([]string, 0, len(result.Options))
	for _, opt := range result.Options {
		labels = append(labels, opt.Label)
	}
	expected := []string{"1080p", "480p", "Audio 128kbps"}
	if len(labels) != len(expected) {
		t.Fatalf("expected labels %v, got %v", expected, labels)
	}
	for i := range expected {
		if labels[i] != expected[i] {
			t.Errorf("option %d = %q, want %q", i, labels[i], expected[i])
		}
	}

	if result.Options[0].URL != "https://cdn.example.com/1080.mp4" {
		t.Errorf("expected largest 1080p entry, got %s", result.Options[0].URL)
	}
	if result.Options[2].URL != "https://cdn.example.com/a.m4a" {
		t.Errorf("expected m4a on bitrate tie, got %s", result.Options[2].URL)
	}
	if result.Options[2].Kind != models.MediaKindAudio {
		t.Errorf("expected audio kind, got %s", result.Options[2].Kind)
	}
	if result.ThumbnailURL == nil || *result.ThumbnailURL != "https://i.example.com/thumb.jpg" {
		t.Errorf("unexpected thumbnail %v", result.ThumbnailURL)
	}
}

func TestNormalizeEstimatesMissingSize(t *testing.T) {
	info := &RawInfo{
		Duration: 80,
		Formats: []RawFormat{
			{URL: "https://cdn.example.com/a.m4a", Ext: "m4a", AudioCodec: "mp4a", BitrateKbps: 1000},
		},
	}

	result, ok := Normalize(info, models.ModeAuto)
	if !ok {
		t.Fatal("expected options")
	}
	opt := result.Options[0]
	if opt.EstimatedSizeBytes == nil || *opt.EstimatedSizeBytes != 10240000 {
		t.Errorf("expected estimated size 10240000, got %v", opt.EstimatedSizeBytes)
	}
	if opt.SizeExact {
		t.Error("estimated size must not be marked exact")
	}
}

func TestNormalizeModes(t *testing.T) {
	video, _ := Normalize(sampleInfo(), models.ModeVideo)
	for _, opt := range video.Options {
		if opt.Kind != models.MediaKindVideo {
			t.Errorf("video mode returned %s option", opt.Kind)
		}
	}

	audio, _ := Normalize(sampleInfo(), models.ModeAudio)
	if len(audio.Options) != 1 || audio.Options[0].Kind != models.MediaKindAudio {
		t.Errorf("audio mode should return only the audio entry, got %+v", audio.Options)
	}
}

func TestNormalizeFallback(t *testing.T) {
	info := &RawInfo{Title: "Clip", URL: "https://cdn.example.com/best.mp4"}

	result, ok := Normalize(info, models.ModeAuto)
	if !ok {
		t.Fatal("expected fallback option")
	}
	if len(result.Options) != 1 || result.Options[0].Label != "Best" || result.Options[0].Kind != models.MediaKindVideo {
		t.Errorf("unexpected fallback %+v", result.Options)
	}

	audio, _ := Normalize(info, models.ModeAudio)
	if audio.Options[0].Kind != models.MediaKindAudio {
		t.Errorf("expected audio fallback in audio mode, got %s", audio.Options[0].Kind)
	}

	if _, ok := Normalize(&RawInfo{Title: "Empty"}, models.ModeAuto); ok {
		t.Error("expected no options without formats or URL")
	}
}

func TestAdapterFallsThroughBackends(t *testing.T) {
	unsupported := &fakeBackend{name: "youtube", supports: false}
	broken := &fakeBackend{name: "first", supports: true, err: errors.New("login required")}
	working := &fakeBackend{name: "yt-dlp", supports: true, info: sampleInfo()}

	adapter := NewAdapter(unsupported, broken, working)
	outcome := adapter.Extract(context.Background(), "https://example.com/v", models.ModeAuto)

	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", outcome.Kind, outcome.Reason)
	}
	if outcome.Result.Source != "structured:yt-dlp" {
		t.Errorf("unexpected source %q", outcome.Result.Source)
	}
	if unsupported.calls != 0 {
		t.Error("unsupported backend should not be called")
	}
	if broken.calls != 1 {
		t.Errorf("expected broken backend to be tried once, got %d", broken.calls)
	}
}

func TestAdapterSkipsOnBackendErrors(t *testing.T) {
	adapter := NewAdapter(
		&fakeBackend{name: "yt-dlp", supports: true, err: errors.New("Video unavailable in your country")},
	)

	outcome := adapter.Extract(context.Background(), "https://example.com/v", models.ModeAuto)
	if outcome.Kind != OutcomeSkip {
		t.Fatalf("expected skip, got %s", outcome.Kind)
	}
	if outcome.Reason == "" {
		t.Error("expected skip reason to be preserved")
	}
}

func TestParseYtdlpOutput(t *testing.T) {
	stdout := `[youtube] Extracting URL
{"title":"Clip","thumbnail":"https://i.example.com/t.jpg","duration":80,"formats":[` +
		`{"url":"https://cdn.example.com/v.mp4","ext":"mp4","vcodec":"avc1.64001F","acodec":"mp4a.40.2","height":720,"tbr":1200.5,"protocol":"https"},` +
		`{"url":"https://cdn.example.com/a.m4a","ext":"m4a","vcodec":"none","acodec":"mp4a.40.2","abr":128,"filesize":2048,"protocol":"https"},` +
		`{"url":"https://cdn.example.com/master.m3u8","ext":"mp4","vcodec":"avc1","acodec":"mp4a","height":1080,"protocol":"m3u8_native"}]}`

	info, err := parseYtdlpOutput(stdout)
	if err != nil {
		t.Fatalf("parseYtdlpOutput() error = %v", err)
	}
	if info.Title != "Clip" || info.Duration != 80 {
		t.Errorf("unexpected info %+v", info)
	}
	if len(info.Formats) != 2 {
		t.Fatalf("expected manifest format to be dropped, got %d formats", len(info.Formats))
	}
	if info.Formats[1].VideoCodec != "" {
		t.Errorf("expected vcodec none to map to empty, got %q", info.Formats[1].VideoCodec)
	}
	if info.Formats[1].Size == nil || *info.Formats[1].Size != 2048 {
		t.Errorf("expected filesize 2048, got %v", info.Formats[1].Size)
	}
	if info.Formats[0].BitrateKbps != 1200.5 {
		t.Errorf("expected tbr bitrate, got %v", info.Formats[0].BitrateKbps)
	}

	if _, err := parseYtdlpOutput("ERROR: Unsupported URL"); err == nil {
		t.Error("expected error when no JSON is printed")
	}
}

func TestYtdlpProxyRotation(t *testing.T) {
	proxies := []string{
		"http://10.0.0.1:3128",
		"http://10.0.0.2:3128",
		"socks5://10.0.0.3:1080",
	}
	backend := NewYtdlpBackend(config.ExtractConfig{YtdlpProxies: proxies})

	seen := make(map[string]int)
	for i := 0; i < 300; i++ {
		seen[backend.proxyFor()]++
	}
	if len(seen) != len(proxies) {
		t.Fatalf("expected %d distinct proxies, got %v", len(proxies), seen)
	}
	for _, p := range proxies {
		if seen[p] == 0 {
			t.Errorf("proxy %s was never picked", p)
		}
	}

	direct := NewYtdlpBackend(config.ExtractConfig{})
	if got := direct.proxyFor(); got != "" {
		t.Errorf("expected no proxy without configuration, got %q", got)
	}
}
