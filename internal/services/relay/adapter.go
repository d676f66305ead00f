// Package relay delegates extraction to public relay services.
package relay

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/denisAlshanov/mediarelay/internal/config"
	"github.com/denisAlshanov/mediarelay/internal/models"
	"github.com/denisAlshanov/mediarelay/internal/services/extractor"
	"github.com/denisAlshanov/mediarelay/internal/services/relaypool"
	"github.com/denisAlshanov/mediarelay/internal/services/youtube"
	"github.com/denisAlshanov/mediarelay/internal/utils"
)

// ErrNoMedia means the relay answered but had nothing to offer. The instance
// is not penalized for it.
var ErrNoMedia = errors.New("relay returned no media")

// Backend resolves a URL through one relay instance.
type Backend interface {
	Resolve(ctx context.Context, inst relaypool.Instance, rawURL string, mode models.Mode) (*models.ExtractionResult, error)
}

type Adapter struct {
	pool         *relaypool.Pool
	backends     map[relaypool.Kind]Backend
	relayDomains []string
	callTimeout  time.Duration
}

func NewAdapter(pool *relaypool.Pool, extractCfg config.ExtractConfig, relayCfg config.RelayConfig) *Adapter {
	client := &http.Client{Timeout: relayCfg.Timeout}
	return &Adapter{
		pool: pool,
		backends: map[relaypool.Kind]Backend{
			relaypool.KindCobalt: NewCobaltBackend(client),
			relaypool.KindPiped:  NewPipedBackend(client),
		},
		relayDomains: extractCfg.RelayDomains,
		callTimeout:  relayCfg.Timeout,
	}
}

// WithBackend replaces the backend used for kind.
func (a *Adapter) WithBackend(kind relaypool.Kind, backend Backend) *Adapter {
	a.backends[kind] = backend
	return a
}

// KindFor picks the relay kind for a source URL: piped for YouTube, cobalt
// for the configured relay domains.
func (a *Adapter) KindFor(rawURL string) (relaypool.Kind, bool) {
	if youtube.IsYouTubeURL(rawURL) {
		return relaypool.KindPiped, true
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	for _, domain := range a.relayDomains {
		domain = strings.ToLower(domain)
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return relaypool.KindCobalt, true
		}
	}
	return "", false
}

// ExtractViaRelay tries each instance of the matching kind at most once.
func (a *Adapter) ExtractViaRelay(ctx context.Context, rawURL string, mode models.Mode) extractor.Outcome {
	kind, ok := a.KindFor(rawURL)
	if !ok {
		return extractor.Skip("host is not routed to a relay")
	}
	backend, ok := a.backends[kind]
	if !ok {
		return extractor.Skip("no %s backend", kind)
	}

	attempts := a.pool.Count(kind)
	if attempts == 0 {
		return extractor.Skip("no %s instances configured", kind)
	}

	var reasons []string
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			reasons = append(reasons, ctx.Err().Error())
			break
		}

		inst, ok := a.pool.SelectInstance(kind)
		if !ok {
			break
		}

		result, err := a.call(ctx, backend, inst, rawURL, mode)
		if errors.Is(err, ErrNoMedia) {
			a.pool.ReportSuccess(inst)
			return extractor.Skip("%s: %v", inst.Endpoint, err)
		}
		if err != nil {
			// the caller's own deadline is not the instance's fault
			if ctx.Err() == nil {
				a.pool.ReportFailure(inst)
			}
			utils.LogWarn(ctx, "Relay instance failed", logrus.Fields{
				"kind":     kind,
				"endpoint": inst.Endpoint,
				"error":    err.Error(),
			})
			reasons = append(reasons, inst.Endpoint+": "+err.Error())
			continue
		}

		a.pool.ReportSuccess(inst)
		result.Source = "relay:" + string(kind)
		return extractor.Success(result)
	}

	return extractor.Skip("all %s instances failed: %s", kind, strings.Join(reasons, "; "))
}

func (a *Adapter) call(ctx context.Context, backend Backend, inst relaypool.Instance, rawURL string, mode models.Mode) (*models.ExtractionResult, error) {
	if a.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
	}
	return backend.Resolve(ctx, inst, rawURL, mode)
}
