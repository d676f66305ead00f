package extractor

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/denisAlshanov/mediarelay/internal/models"
	"github.com/denisAlshanov/mediarelay/internal/utils"
)

// Adapter runs metadata backends in order and normalizes the first usable
// answer.
type Adapter struct {
	backends []MetadataBackend
}

func NewAdapter(backends ...MetadataBackend) *Adapter {
	return &Adapter{backends: backends}
}

// Extract never returns Fail: backend errors such as geo-blocks, login walls
// or a missing binary are reported as Skip with the reasons kept for logs.
func (a *Adapter) Extract(ctx context.Context, rawURL string, mode models.Mode) Outcome {
	var reasons []string

	for _, backend := range a.backends {
		if !backend.Supports(rawURL) {
			continue
		}
		if ctx.Err() != nil {
			reasons = append(reasons, ctx.Err().Error())
			break
		}

		info, err := backend.Fetch(ctx, rawURL)
		if err != nil {
			utils.LogDebug(ctx, "Metadata backend failed", logrus.Fields{
				"backend": backend.Name(),
				"url":     rawURL,
				"error":   err.Error(),
			})
			reasons = append(reasons, backend.Name()+": "+err.Error())
			continue
		}

		result, ok := Normalize(info, mode)
		if !ok {
			reasons = append(reasons, backend.Name()+": no usable formats")
			continue
		}
		result.Source = "structured:" + backend.Name()
		return Success(result)
	}

	if len(reasons) == 0 {
		return Skip("no metadata backend supports this URL")
	}
	return Skip("%s", strings.Join(reasons, "; "))
}
