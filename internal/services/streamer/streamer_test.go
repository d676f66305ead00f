package streamer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/denisAlshanov/mediarelay/internal/config"
	"github.com/denisAlshanov/mediarelay/internal/services/identity"
)

func newTestStreamer(t *testing.T, idle time.Duration) (*Streamer, *identity.Table) {
	t.Helper()
	table := identity.Default()
	s, err := New(table, config.StreamConfig{
		ConnectTimeout: time.Second,
		IdleTimeout:    idle,
		ChunkSize:      64 * 1024,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, table
}

type uaRecorder struct {
	mu  sync.Mutex
	uas []string
}

func (r *uaRecorder) add(ua string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uas = append(r.uas, ua)
}

func (r *uaRecorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.uas...)
}

func TestOpenRetriesLadderInOrder(t *testing.T) {
	s, table := newTestStreamer(t, time.Second)
	mobile, _ := table.Profile(identity.ProfileMobile)

	rec := &uaRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.Header.Get("User-Agent"))
		if r.Header.Get("User-Agent") != mobile.UserAgent {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	stream, err := s.Open(context.Background(), server.URL+"/v.mp4")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer stream.Close()

	if stream.Identity.Name != identity.ProfileMobile {
		t.Errorf("expected mobile identity to succeed, got %s", stream.Identity.Name)
	}
	if len(stream.Attempts) != 2 || stream.Attempts[0].StatusCode != http.StatusForbidden {
		t.Errorf("unexpected attempts %+v", stream.Attempts)
	}

	desktop, _ := table.Profile(identity.ProfileDesktop)
	got := rec.list()
	if len(got) != 2 || got[0] != desktop.UserAgent || got[1] != mobile.UserAgent {
		t.Errorf("expected desktop then mobile, got %v", got)
	}
}

func TestOpenBlockedAfterLadder(t *testing.T) {
	s, table := newTestStreamer(t, time.Second)

	rec := &uaRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.Header.Get("User-Agent") + "|" + r.Header.Get("Referer"))
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := s.Open(context.Background(), server.URL+"/v.mp4")

	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected BlockedError, got %v", err)
	}
	if blocked.LastStatus != http.StatusForbidden {
		t.Errorf("expected last status 403, got %d", blocked.LastStatus)
	}

	ladder := table.Ladder("127.0.0.1")
	if len(blocked.Attempts) != len(ladder) {
		t.Errorf("expected one attempt per profile (%d), got %d", len(ladder), len(blocked.Attempts))
	}
	seen := make(map[string]bool)
	for i, a := range blocked.Attempts {
		if a.Identity.Name != ladder[i].Name {
			t.Errorf("attempt %d used %s, want %s", i, a.Identity.Name, ladder[i].Name)
		}
		if seen[a.Identity.Name] {
			t.Errorf("profile %s was retried", a.Identity.Name)
		}
		seen[a.Identity.Name] = true
	}
	if len(rec.list()) != len(ladder) {
		t.Errorf("expected %d upstream requests, got %d", len(ladder), len(rec.list()))
	}
}

func TestOpenRejectsHTMLBody(t *testing.T) {
	s, _ := newTestStreamer(t, time.Second)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte("<html><body>Please log in</body></html>"))
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p'})
	}))
	defer server.Close()

	stream, err := s.Open(context.Background(), server.URL+"/v")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer stream.Close()

	if calls.Load() != 2 || stream.Attempts[0].StatusCode != http.StatusOK {
		t.Errorf("expected HTML response to be rejected, calls=%d attempts=%+v", calls.Load(), stream.Attempts)
	}
}

func TestWriteToDeliversExactLength(t *testing.T) {
	s, _ := newTestStreamer(t, time.Second)

	const total = 524288
	payload := bytes.Repeat([]byte{0xAB}, total)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", strconv.Itoa(total))
		w.Write(payload)
	}))
	defer server.Close()

	stream, err := s.Open(context.Background(), server.URL+"/big.mp4")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer stream.Close()

	if stream.ContentLength != total {
		t.Errorf("expected content length %d, got %d", total, stream.ContentLength)
	}

	rec := httptest.NewRecorder()
	n, err := stream.WriteTo(rec)
	if err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	if n != total || rec.Body.Len() != total {
		t.Errorf("expected %d bytes, wrote %d (body %d)", total, n, rec.Body.Len())
	}
	if !rec.Flushed {
		t.Error("expected the recorder to be flushed")
	}
}

type chunkWriter struct {
	writes []int
}

func (c *chunkWriter) Write(p []byte) (int, error) {
	c.writes = append(c.writes, len(p))
	return len(p), nil
}

func TestWriteToUsesFixedChunks(t *testing.T) {
	st := &Stream{
		body:      bytes.NewReader(make([]byte, 150*1024)),
		closer:    io.NopCloser(nil),
		cancel:    func() {},
		chunkSize: 64 * 1024,
	}

	w := &chunkWriter{}
	if _, err := st.WriteTo(w); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	expected := []int{65536, 65536, 22528}
	if len(w.writes) != len(expected) {
		t.Fatalf("expected %d writes, got %v", len(expected), w.writes)
	}
	for i := range expected {
		if w.writes[i] != expected[i] {
			t.Errorf("write %d = %d bytes, want %d", i, w.writes[i], expected[i])
		}
	}
}

func TestIdleTimeoutAbortsStalledUpstream(t *testing.T) {
	s, _ := newTestStreamer(t, 100*time.Millisecond)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", "1048576")
		w.Write(make([]byte, 1024))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	stream, err := s.Open(context.Background(), server.URL+"/stall.mp4")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer stream.Close()

	start := time.Now()
	_, err = stream.WriteTo(io.Discard)
	if err == nil {
		t.Fatal("expected stalled stream to fail")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("idle timeout took too long: %v", elapsed)
	}
}

func TestOpenRejectsInvalidTarget(t *testing.T) {
	s, _ := newTestStreamer(t, time.Second)

	if _, err := s.Open(context.Background(), "file:///etc/passwd"); err == nil {
		t.Error("expected error for non-http target")
	}
}

// cancelWriter cancels the caller's context after the first chunk arrives.
type cancelWriter struct {
	cancel context.CancelFunc
	n      int
}

func (w *cancelWriter) Write(p []byte) (int, error) {
	w.n += len(p)
	w.cancel()
	return len(p), nil
}

func TestClientDisconnectStopsUpstream(t *testing.T) {
	s, _ := newTestStreamer(t, 5*time.Second)

	upstreamGone := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", strconv.Itoa(10<<20))
		chunk := make([]byte, 64*1024)
		for i := 0; i < 160; i++ {
			if _, err := w.Write(chunk); err != nil {
				break
			}
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
				close(upstreamGone)
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
		close(upstreamGone)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := s.Open(ctx, server.URL+"/long.mp4")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer stream.Close()

	w := &cancelWriter{cancel: cancel}
	written, err := stream.WriteTo(w)
	if err == nil {
		t.Fatal("expected WriteTo to stop once the caller went away")
	}
	if written >= 10<<20 {
		t.Errorf("expected a partial copy, got %d bytes", written)
	}

	select {
	case <-upstreamGone:
	case <-time.After(3 * time.Second):
		t.Error("upstream request was not released after the caller disconnected")
	}
}

func TestOpenWithHeadersAppliesTargetHeaders(t *testing.T) {
	s, _ := newTestStreamer(t, time.Second)

	var gotReferer, gotCookie, gotHost string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		gotCookie = r.Header.Get("Cookie")
		gotHost = r.Host
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	stream, err := s.OpenWithHeaders(context.Background(), server.URL+"/v.mp4", map[string]string{
		"Referer": "https://www.example.com/watch",
		"Cookie":  "session=abc",
		"Host":    "evil.example",
	})
	if err != nil {
		t.Fatalf("OpenWithHeaders() error = %v", err)
	}
	defer stream.Close()

	if gotReferer != "https://www.example.com/watch" || gotCookie != "session=abc" {
		t.Errorf("target headers not applied: referer=%q cookie=%q", gotReferer, gotCookie)
	}
	if gotHost == "evil.example" {
		t.Error("Host header must not be overridden")
	}
}
