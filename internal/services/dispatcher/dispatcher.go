// Package dispatcher runs the extraction strategies in their fixed order and
// returns the first usable result.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/denisAlshanov/mediarelay/internal/models"
	"github.com/denisAlshanov/mediarelay/internal/services/extractor"
	"github.com/denisAlshanov/mediarelay/internal/utils"
)

const maxStrategyTimeout = 15 * time.Second

// Strategy is one step of the extraction chain.
type Strategy struct {
	Name string
	Run  func(ctx context.Context, req models.MediaRequest) extractor.Outcome
}

// Resolver is implemented by the dispatcher and by the caching decorator.
type Resolver interface {
	Resolve(ctx context.Context, req models.MediaRequest) (*models.ExtractionResult, error)
}

type Dispatcher struct {
	strategies []Strategy
	timeout    time.Duration
}

func New(timeout time.Duration, strategies ...Strategy) *Dispatcher {
	if timeout <= 0 || timeout > maxStrategyTimeout {
		timeout = maxStrategyTimeout
	}
	return &Dispatcher{strategies: strategies, timeout: timeout}
}

// Resolve validates the request and walks the chain. Strategy failures are
// logged and never returned; the caller sees NotFound once the chain is
// exhausted, or Timeout when its own context ends first.
func (d *Dispatcher) Resolve(ctx context.Context, req models.MediaRequest) (*models.ExtractionResult, error) {
	req.SourceURL = strings.TrimSpace(req.SourceURL)
	if err := ValidateSourceURL(req.SourceURL); err != nil {
		return nil, err
	}
	mode, err := models.ParseMode(string(req.Mode))
	if err != nil {
		return nil, utils.NewBadInputError(err.Error(), map[string]interface{}{"mode": req.Mode})
	}
	req.Mode = mode

	for _, strategy := range d.strategies {
		if err := ctx.Err(); err != nil {
			return nil, callerError(err)
		}

		outcome := d.run(ctx, strategy, req)

		switch outcome.Kind {
		case extractor.OutcomeSuccess:
			result := outcome.Result
			if result != nil {
				result.FilterByMode(req.Mode)
			}
			if result == nil || len(result.Options) == 0 {
				d.logMove(ctx, strategy.Name, req, "success without options")
				continue
			}
			if result.Source == "" {
				result.Source = strategy.Name
			}
			utils.LogInfo(ctx, "Extraction resolved", logrus.Fields{
				"strategy": strategy.Name,
				"source":   result.Source,
				"url":      req.SourceURL,
				"options":  len(result.Options),
			})
			return result, nil

		case extractor.OutcomeFail:
			utils.LogWarn(ctx, "Extraction strategy failed", logrus.Fields{
				"strategy": strategy.Name,
				"url":      req.SourceURL,
				"reason":   outcome.Reason,
			})

		default:
			d.logMove(ctx, strategy.Name, req, outcome.Reason)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, callerError(err)
	}
	return nil, utils.NewNotFoundError(req.SourceURL)
}

func (d *Dispatcher) run(ctx context.Context, strategy Strategy, req models.MediaRequest) (outcome extractor.Outcome) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			utils.LogError(ctx, "Extraction strategy panicked", fmt.Errorf("%v", r), logrus.Fields{
				"strategy": strategy.Name,
			})
			outcome = extractor.Skip("strategy panicked")
		}
	}()

	return strategy.Run(ctx, req)
}

func (d *Dispatcher) logMove(ctx context.Context, name string, req models.MediaRequest, reason string) {
	utils.LogDebug(ctx, "Extraction strategy skipped", logrus.Fields{
		"strategy": name,
		"url":      req.SourceURL,
		"reason":   reason,
	})
}

func callerError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return utils.NewTimeoutError("resolving media")
	}
	return utils.NewTimeoutError("resolving media (request cancelled)")
}

// ValidateSourceURL accepts absolute http(s) URLs with a host.
func ValidateSourceURL(rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return utils.NewInvalidURLError(rawURL, "url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return utils.NewInvalidURLError(rawURL, "url does not parse")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return utils.NewInvalidURLError(rawURL, "only http and https URLs are supported")
	}
	if u.Hostname() == "" {
		return utils.NewInvalidURLError(rawURL, "url has no host")
	}
	return nil
}
