package dispatcher

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/denisAlshanov/mediarelay/internal/models"
	"github.com/denisAlshanov/mediarelay/internal/services/extractor"
	"github.com/denisAlshanov/mediarelay/internal/utils"
)

func strategy(name string, outcome extractor.Outcome, calls *[]string) Strategy {
	return Strategy{
		Name: name,
		Run: func(ctx context.Context, req models.MediaRequest) extractor.Outcome {
			*calls = append(*calls, name)
			return outcome
		},
	}
}

func imageResult() *models.ExtractionResult {
	return &models.ExtractionResult{
		Title:  "Page",
		Source: "scraper",
		Options: []models.MediaOption{
			{Kind: models.MediaKindImage, Label: "Image", URL: "https://cdn.example.com/p.jpg"},
		},
	}
}

func TestResolveStrategyIsolation(t *testing.T) {
	var calls []string
	expected := imageResult()

	d := New(time.Second,
		strategy("structured", extractor.Fail(errors.New("backend exploded")), &calls),
		strategy("relay", extractor.Skip("host is not routed to a relay"), &calls),
		strategy("scraper", extractor.Success(expected), &calls),
	)

	result, err := d.Resolve(context.Background(), models.MediaRequest{SourceURL: "https://example.com/a"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result != expected {
		t.Error("expected the third strategy's result to be returned unchanged")
	}
	if len(calls) != 3 {
		t.Errorf("expected all three strategies to run, got %v", calls)
	}
}

func TestResolveStopsAtFirstSuccess(t *testing.T) {
	var calls []string
	d := New(time.Second,
		strategy("structured", extractor.Success(imageResult()), &calls),
		strategy("scraper", extractor.Success(imageResult()), &calls),
	)

	if _, err := d.Resolve(context.Background(), models.MediaRequest{SourceURL: "https://example.com/a"}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("expected chain to stop after first success, got %v", calls)
	}
}

func TestResolveEmptySuccessCountsAsSkip(t *testing.T) {
	var calls []string
	d := New(time.Second,
		strategy("structured", extractor.Success(&models.ExtractionResult{Title: "Empty"}), &calls),
		strategy("scraper", extractor.Success(imageResult()), &calls),
	)

	result, err := d.Resolve(context.Background(), models.MediaRequest{SourceURL: "https://example.com/a"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.Source != "scraper" {
		t.Errorf("expected scraper result, got source %q", result.Source)
	}
}

func TestResolveModeFilterCanEmptyResult(t *testing.T) {
	var calls []string
	audioOnly := &models.ExtractionResult{Options: []models.MediaOption{
		{Kind: models.MediaKindAudio, Label: "Audio", URL: "https://cdn.example.com/a.m4a"},
	}}
	d := New(time.Second, strategy("structured", extractor.Success(audioOnly), &calls))

	_, err := d.Resolve(context.Background(), models.MediaRequest{SourceURL: "https://example.com/a", Mode: models.ModeVideo})
	var appErr *utils.AppError
	if !errors.As(err, &appErr) || appErr.Code != utils.ErrorCodeNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestResolveNotFoundWhenExhausted(t *testing.T) {
	var calls []string
	d := New(time.Second,
		strategy("structured", extractor.Skip("unsupported URL"), &calls),
		strategy("relay", extractor.Skip("host is not routed to a relay"), &calls),
		strategy("scraper", extractor.Skip("no media tags found"), &calls),
	)

	_, err := d.Resolve(context.Background(), models.MediaRequest{SourceURL: "https://example.com/plain"})
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", appErr.StatusCode)
	}
}

func TestResolveBadInput(t *testing.T) {
	var calls []string
	d := New(time.Second, strategy("structured", extractor.Success(imageResult()), &calls))

	testCases := []struct {
		name string
		req  models.MediaRequest
	}{
		{name: "Empty URL", req: models.MediaRequest{}},
		{name: "FTP scheme", req: models.MediaRequest{SourceURL: "ftp://example.com/a"}},
		{name: "No host", req: models.MediaRequest{SourceURL: "https:///path"}},
		{name: "Relative", req: models.MediaRequest{SourceURL: "/watch?v=1"}},
		{name: "Bad mode", req: models.MediaRequest{SourceURL: "https://example.com", Mode: "gif"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Resolve(context.Background(), tc.req)
			var appErr *utils.AppError
			if !errors.As(err, &appErr) || appErr.Code != utils.ErrorCodeBadInput {
				t.Errorf("expected BadInput, got %v", err)
			}
		})
	}
	if len(calls) != 0 {
		t.Errorf("strategies must not run for invalid input, got %v", calls)
	}
}

func TestResolveCallerDeadline(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	d := New(time.Second, strategy("structured", extractor.Success(imageResult()), &calls))
	_, err := d.Resolve(ctx, models.MediaRequest{SourceURL: "https://example.com/a"})

	var appErr *utils.AppError
	if !errors.As(err, &appErr) || appErr.Code != utils.ErrorCodeTimeout {
		t.Fatalf("expected Timeout, got %v", err)
	}
}

func TestStrategyTimeoutIsBounded(t *testing.T) {
	var deadline time.Time
	d := New(time.Hour, Strategy{
		Name: "slow",
		Run: func(ctx context.Context, req models.MediaRequest) extractor.Outcome {
			deadline, _ = ctx.Deadline()
			return extractor.Skip("nothing")
		},
	})

	start := time.Now()
	d.Resolve(context.Background(), models.MediaRequest{SourceURL: "https://example.com/a"})
	if deadline.IsZero() || deadline.Sub(start) > 15*time.Second+time.Second {
		t.Errorf("expected strategy deadline within 15s, got %v", deadline.Sub(start))
	}
}

func TestPanickingStrategyIsSkipped(t *testing.T) {
	var calls []string
	d := New(time.Second,
		Strategy{Name: "broken", Run: func(ctx context.Context, req models.MediaRequest) extractor.Outcome {
			panic("nil map")
		}},
		strategy("scraper", extractor.Success(imageResult()), &calls),
	)

	if _, err := d.Resolve(context.Background(), models.MediaRequest{SourceURL: "https://example.com/a"}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
}
