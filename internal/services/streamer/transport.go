package streamer

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	xproxy "golang.org/x/net/proxy"

	"github.com/denisAlshanov/mediarelay/internal/services/identity"
)

// transports holds one round tripper per TLS fingerprint. They are shared by
// all streaming calls.
type transports struct {
	standard http.RoundTripper
	chrome   http.RoundTripper
}

type contextDialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

func newTransports(connectTimeout, headerTimeout time.Duration, proxyURL string) (*transports, error) {
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}

	proxy, err := parseProxy(proxyURL)
	if err != nil {
		return nil, err
	}

	standard := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: headerTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
	if proxy != nil {
		standard.Proxy = http.ProxyURL(proxy)
	}

	origin, err := originDialer(dialer, proxy, connectTimeout)
	if err != nil {
		return nil, err
	}

	return &transports{
		standard: standard,
		chrome:   newChromeTransport(dialer, origin, proxy, connectTimeout, headerTimeout),
	}, nil
}

func parseProxy(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid stream proxy: %w", err)
	}
	switch u.Scheme {
	case "http", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("unsupported stream proxy scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid stream proxy: missing host")
	}
	return u, nil
}

func (t *transports) forFingerprint(fingerprint string) http.RoundTripper {
	if fingerprint == identity.FingerprintChrome {
		return t.chrome
	}
	return t.standard
}

// originDialer returns a dialer whose connections end at the origin. With a
// proxy configured they are tunnelled through it, so the fingerprinted
// handshake still happens end to end.
func originDialer(dialer *net.Dialer, proxy *url.URL, timeout time.Duration) (contextDialer, error) {
	if proxy == nil {
		return dialer, nil
	}
	if proxy.Scheme == "http" {
		return &connectDialer{dialer: dialer, proxy: proxy, timeout: timeout}, nil
	}

	d, err := xproxy.FromURL(proxy, dialer)
	if err != nil {
		return nil, fmt.Errorf("invalid stream proxy: %w", err)
	}
	cd, ok := d.(xproxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("stream proxy %s does not support context dialing", proxy.Scheme)
	}
	return cd, nil
}

// connectDialer opens HTTP CONNECT tunnels through an http:// proxy.
type connectDialer struct {
	dialer  *net.Dialer
	proxy   *url.URL
	timeout time.Duration
}

func (d *connectDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	port := d.proxy.Port()
	if port == "" {
		port = "80"
	}
	conn, err := d.dialer.DialContext(ctx, network, net.JoinHostPort(d.proxy.Hostname(), port))
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(d.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if user := d.proxy.User; user != nil {
		password, _ := user.Password()
		credentials := base64.StdEncoding.EncodeToString([]byte(user.Username() + ":" + password))
		req.Header.Set("Proxy-Authorization", "Basic "+credentials)
	}
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("proxy connect: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("proxy connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("proxy refused tunnel to %s: %s", addr, resp.Status)
	}

	conn.SetDeadline(time.Time{})
	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

// bufferedConn keeps bytes the proxy sent right after its CONNECT reply.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// chromeTransport presents a Chrome ClientHello. HTTPS requests try HTTP/2
// first and fall back to HTTP/1.1 when the handshake or the h2 exchange
// fails; plain HTTP goes straight to the HTTP/1.1 transport.
type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

func newChromeTransport(dialer *net.Dialer, origin contextDialer, proxy *url.URL, connectTimeout, headerTimeout time.Duration) *chromeTransport {
	h2 := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialChrome(ctx, origin, network, addr, connectTimeout, nil)
		},
		ReadIdleTimeout: headerTimeout,
		PingTimeout:     connectTimeout,
	}
	h1 := &http.Transport{
		DialContext: dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChrome(ctx, origin, network, addr, connectTimeout, []string{"http/1.1"})
		},
		ResponseHeaderTimeout: headerTimeout,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
	if proxy != nil {
		// https is tunnelled by the TLS dialer; plain http is forwarded
		h1.Proxy = func(req *http.Request) (*url.URL, error) {
			if req.URL.Scheme == "http" {
				return proxy, nil
			}
			return nil, nil
		}
	}
	return &chromeTransport{h2: h2, h1: h1}
}

func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" || req.Body != nil && req.Body != http.NoBody {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	if req.Context().Err() != nil {
		return nil, err
	}
	return t.h1.RoundTrip(req.Clone(req.Context()))
}

// dialChrome opens a connection to addr and performs a uTLS handshake with
// the Chrome 120 fingerprint. A nil nextProtos keeps Chrome's own ALPN list.
func dialChrome(ctx context.Context, dialer contextDialer, network, addr string, timeout time.Duration, nextProtos []string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	cfg := &utls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}
	tlsConn := utls.UClient(conn, cfg, utls.HelloChrome_120)
	if nextProtos != nil {
		// the preset carries its own ALPN extension, so narrow it in place
		spec, err := utls.UTLSIdToSpec(utls.HelloChrome_120)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("chrome hello spec: %w", err)
		}
		for _, ext := range spec.Extensions {
			if alpn, ok := ext.(*utls.ALPNExtension); ok {
				alpn.AlpnProtocols = nextProtos
			}
		}
		tlsConn = utls.UClient(conn, cfg, utls.HelloCustom)
		if err := tlsConn.ApplyPreset(&spec); err != nil {
			conn.Close()
			return nil, fmt.Errorf("applying chrome hello: %w", err)
		}
	}

	handshakeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(handshakeCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
