// Package streamer fetches a resolved media URL and relays its bytes,
// switching outbound identity when the origin rejects a request.
package streamer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/denisAlshanov/mediarelay/internal/config"
	"github.com/denisAlshanov/mediarelay/internal/models"
	"github.com/denisAlshanov/mediarelay/internal/services/identity"
	"github.com/denisAlshanov/mediarelay/internal/utils"
)

const sniffLen = 512

// BlockedError is returned when every identity in the ladder was rejected.
type BlockedError struct {
	LastStatus int
	Attempts   []models.StreamAttempt
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("origin rejected %d identities (last status %d)", len(e.Attempts), e.LastStatus)
}

type Streamer struct {
	table         *identity.Table
	transports    *transports
	chunkSize     int
	idleTimeout   time.Duration
	headerTimeout time.Duration
}

func New(table *identity.Table, cfg config.StreamConfig) (*Streamer, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 64 * 1024
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	t, err := newTransports(cfg.ConnectTimeout, cfg.IdleTimeout, cfg.ProxyURL)
	if err != nil {
		return nil, err
	}

	return &Streamer{
		table:         table,
		transports:    t,
		chunkSize:     cfg.ChunkSize,
		idleTimeout:   cfg.IdleTimeout,
		headerTimeout: cfg.ConnectTimeout + cfg.IdleTimeout,
	}, nil
}

// Stream is an open upstream response. Callers must Close it.
type Stream struct {
	ContentType   string
	ContentLength int64
	FinalURL      string
	Identity      models.IdentityProfile
	Attempts      []models.StreamAttempt

	body      io.Reader
	closer    io.Closer
	cancel    context.CancelFunc
	chunkSize int
	closeOnce sync.Once
}

// Open walks the identity ladder for the target host, trying each profile
// exactly once, and returns the first non-rejected response.
func (s *Streamer) Open(ctx context.Context, target string) (*Stream, error) {
	return s.OpenWithHeaders(ctx, target, nil)
}

// OpenWithHeaders is Open with extra request headers that the extractor
// reported for the target. They are applied on top of every identity.
func (s *Streamer) OpenWithHeaders(ctx context.Context, target string, headers map[string]string) (*Stream, error) {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, utils.NewInvalidURLError(target, "target must be an absolute http(s) URL")
	}

	ladder := s.table.Ladder(u.Hostname())
	attempts := make([]models.StreamAttempt, 0, len(ladder))
	lastStatus := 0

	for i, profile := range ladder {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attempt := models.StreamAttempt{TargetURL: target, Identity: profile, AttemptIndex: uint(i)}
		stream, status, err := s.try(ctx, target, profile, headers)
		attempt.StatusCode = status
		attempt.Err = err
		attempts = append(attempts, attempt)

		if err == nil {
			stream.Attempts = attempts
			utils.LogInfo(ctx, "Upstream stream opened", logrus.Fields{
				"host":           u.Hostname(),
				"identity":       profile.Name,
				"attempt":        i,
				"content_type":   stream.ContentType,
				"content_length": stream.ContentLength,
			})
			return stream, nil
		}

		if status != 0 {
			lastStatus = status
		}
		utils.LogWarn(ctx, "Upstream rejected identity", logrus.Fields{
			"host":     u.Hostname(),
			"identity": profile.Name,
			"attempt":  i,
			"status":   status,
			"error":    err.Error(),
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lastStatus == 0 && allTimedOut(attempts) {
		return nil, utils.NewTimeoutError("fetching media from origin")
	}
	return nil, &BlockedError{LastStatus: lastStatus, Attempts: attempts}
}

// try performs one request. A non-nil error means the profile was rejected;
// status is the upstream status when one was received.
func (s *Streamer) try(ctx context.Context, target string, profile models.IdentityProfile, headers map[string]string) (*Stream, int, error) {
	attemptCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	identity.Apply(req, profile)
	applyExtraHeaders(req, headers)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "*/*")
	}

	client := &http.Client{
		Transport: s.transports.forFingerprint(profile.TLSFingerprint),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after %d redirects", len(via))
			}
			// redirects keep the identity of the attempt
			identity.Apply(req, profile)
			applyExtraHeaders(req, headers)
			return nil
		},
	}

	// bounds the wait for response headers on every transport
	headerTimer := time.AfterFunc(s.headerTimeout, cancel)
	resp, err := client.Do(req)
	if !headerTimer.Stop() {
		if err == nil {
			resp.Body.Close()
		}
		cancel()
		return nil, 0, fmt.Errorf("no response headers within %s: %w", s.headerTimeout, context.DeadlineExceeded)
	}
	if err != nil {
		cancel()
		return nil, 0, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		cancel()
		return nil, resp.StatusCode, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	idle := newIdleReader(resp.Body, s.idleTimeout, cancel)
	buffered := bufio.NewReaderSize(idle, sniffLen)

	contentType := resp.Header.Get("Content-Type")
	if looksLikeHTML(contentType, buffered) {
		idle.stop()
		resp.Body.Close()
		cancel()
		return nil, resp.StatusCode, fmt.Errorf("upstream returned an HTML page instead of media")
	}

	return &Stream{
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
		FinalURL:      resp.Request.URL.String(),
		Identity:      profile,
		body:          buffered,
		closer:        closerFunc(func() error { idle.stop(); return resp.Body.Close() }),
		cancel:        cancel,
		chunkSize:     s.chunkSize,
	}, resp.StatusCode, nil
}

// WriteTo copies the body in fixed-size chunks, flushing after each chunk
// when w supports it. The payload is never buffered whole.
func (st *Stream) WriteTo(w io.Writer) (int64, error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, st.chunkSize)
	var written int64

	for {
		n, readErr := io.ReadFull(st.body, buf)
		if n > 0 {
			m, err := w.Write(buf[:n])
			written += int64(m)
			if err != nil {
				return written, err
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		switch {
		case readErr == nil:
		case errors.Is(readErr, io.EOF), errors.Is(readErr, io.ErrUnexpectedEOF):
			return written, nil
		default:
			return written, readErr
		}
	}
}

// Read lets consumers other than HTTP responses pull the body directly.
func (st *Stream) Read(p []byte) (int, error) {
	return st.body.Read(p)
}

// Close releases the upstream body and cancels the request.
func (st *Stream) Close() error {
	var err error
	st.closeOnce.Do(func() {
		err = st.closer.Close()
		st.cancel()
	})
	return err
}

// looksLikeHTML rejects text/html responses and, when the content type is
// missing or generic, bodies that start like an HTML document.
func looksLikeHTML(contentType string, body *bufio.Reader) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil {
		switch mediaType {
		case "text/html", "application/xhtml+xml":
			return true
		case "application/octet-stream", "text/plain", "binary/octet-stream":
		default:
			return false
		}
	}

	head, _ := body.Peek(sniffLen)
	head = bytes.ToLower(bytes.TrimSpace(head))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}

func allTimedOut(attempts []models.StreamAttempt) bool {
	if len(attempts) == 0 {
		return false
	}
	for _, a := range attempts {
		if !isTimeout(a.Err) {
			return false
		}
	}
	return true
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// applyExtraHeaders sets per-target headers, leaving transport-managed ones
// alone.
func applyExtraHeaders(req *http.Request, headers map[string]string) {
	for key, value := range headers {
		switch http.CanonicalHeaderKey(key) {
		case "Host", "Content-Length", "Connection", "Transfer-Encoding", "Accept-Encoding":
			continue
		}
		req.Header.Set(key, value)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
