package dispatcher

import (
	"context"

	"github.com/denisAlshanov/mediarelay/internal/models"
	"github.com/denisAlshanov/mediarelay/internal/services/extractor"
	"github.com/denisAlshanov/mediarelay/internal/services/relay"
	"github.com/denisAlshanov/mediarelay/internal/services/scraper"
)

// Chain returns the production strategy order: structured extractor, relay
// cluster, generic scraper.
func Chain(structured *extractor.Adapter, relays *relay.Adapter, pages *scraper.Scraper) []Strategy {
	return []Strategy{
		{
			Name: "structured",
			Run: func(ctx context.Context, req models.MediaRequest) extractor.Outcome {
				return structured.Extract(ctx, req.SourceURL, req.Mode)
			},
		},
		{
			Name: "relay",
			Run: func(ctx context.Context, req models.MediaRequest) extractor.Outcome {
				return relays.ExtractViaRelay(ctx, req.SourceURL, req.Mode)
			},
		},
		{
			Name: "scraper",
			Run: func(ctx context.Context, req models.MediaRequest) extractor.Outcome {
				return pages.Scrape(ctx, req.SourceURL)
			},
		},
	}
}
