// Package scraper is the last-resort extraction strategy: it reads a page's
// structured data and social-card tags to find a media URL.
package scraper

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/denisAlshanov/mediarelay/internal/models"
	"github.com/denisAlshanov/mediarelay/internal/services/extractor"
	"github.com/denisAlshanov/mediarelay/internal/services/identity"
)

const (
	maxPageBytes   = 5 << 20
	maxPageTimeout = 10 * time.Second
)

type Scraper struct {
	client  *http.Client
	profile models.IdentityProfile
	timeout time.Duration
}

// New creates a scraper that always fetches with the desktop profile.
func New(table *identity.Table, timeout time.Duration) *Scraper {
	if timeout <= 0 || timeout > maxPageTimeout {
		timeout = maxPageTimeout
	}
	profile, _ := table.Profile(identity.ProfileDesktop)

	return &Scraper{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after %d redirects", len(via))
				}
				return nil
			},
		},
		profile: profile,
		timeout: timeout,
	}
}

// Scrape returns at most one option, or Skip when the page offers nothing.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) extractor.Outcome {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return extractor.Fail(fmt.Errorf("creating request: %w", err))
	}
	identity.Apply(req, s.profile)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return extractor.Skip("page fetch failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return extractor.Skip("page returned status %d", resp.StatusCode)
	}

	pageURL := resp.Request.URL

	// the URL may already point at a media file
	if kind, ok := directMediaKind(resp.Header.Get("Content-Type")); ok {
		return extractor.Success(&models.ExtractionResult{
			Title:   titleFromPath(pageURL),
			Options: []models.MediaOption{{Kind: kind, Label: "Original", URL: pageURL.String()}},
			Source:  "scraper",
		})
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return extractor.Skip("failed to parse page: %v", err)
	}

	result, ok := ExtractFromDocument(doc, pageURL)
	if !ok {
		return extractor.Skip("no media tags found")
	}
	return extractor.Success(result)
}

// ExtractFromDocument applies the tag priority to an already parsed page.
func ExtractFromDocument(doc *goquery.Document, pageURL *url.URL) (*models.ExtractionResult, bool) {
	m, ok := findMedia(doc)
	if !ok {
		return nil, false
	}

	resolved, err := pageURL.Parse(m.url)
	if err != nil || (resolved.Scheme != "http" && resolved.Scheme != "https") {
		return nil, false
	}

	result := &models.ExtractionResult{
		Title:  pageTitle(doc),
		Source: "scraper",
		Options: []models.MediaOption{{
			Kind:  m.kind,
			Label: labelFor(m.kind),
			URL:   resolved.String(),
		}},
	}
	if result.Title == "" {
		result.Title = titleFromPath(pageURL)
	}

	if m.kind == models.MediaKindVideo {
		if thumb := metaContent(doc, "og:image"); thumb != "" {
			if u, err := pageURL.Parse(thumb); err == nil {
				result.ThumbnailURL = models.StringPtr(u.String())
			}
		}
	}

	return result, true
}

type match struct {
	url  string
	kind models.MediaKind
}

func findMedia(doc *goquery.Document) (match, bool) {
	nodes := jsonLDNodes(doc)

	if u, kind := jsonLDVideo(nodes); u != "" {
		return match{url: u, kind: kind}, true
	}
	if u := jsonLDImage(nodes); u != "" {
		return match{url: u, kind: models.MediaKindImage}, true
	}

	for _, property := range []string{"og:video", "og:video:url", "og:video:secure_url"} {
		if u := metaContent(doc, property); u != "" {
			return match{url: u, kind: models.MediaKindVideo}, true
		}
	}
	for _, property := range []string{"og:image", "twitter:image"} {
		if u := metaContent(doc, property); u != "" {
			return match{url: u, kind: models.MediaKindImage}, true
		}
	}

	if href, ok := doc.Find(`link[rel="image_src"]`).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		return match{url: strings.TrimSpace(href), kind: models.MediaKindImage}, true
	}

	return match{}, false
}

func metaContent(doc *goquery.Document, property string) string {
	selector := fmt.Sprintf(`meta[property=%q], meta[name=%q]`, property, property)
	var content string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr("content"); ok && strings.TrimSpace(v) != "" {
			content = strings.TrimSpace(v)
			return false
		}
		return true
	})
	return content
}

func pageTitle(doc *goquery.Document) string {
	if title := metaContent(doc, "og:title"); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func titleFromPath(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		return u.Hostname()
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

func labelFor(kind models.MediaKind) string {
	switch kind {
	case models.MediaKindVideo:
		return "Video"
	case models.MediaKindAudio:
		return "Audio"
	default:
		return "Image"
	}
}

func directMediaKind(contentType string) (models.MediaKind, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	switch {
	case strings.HasPrefix(mediaType, "video/"):
		return models.MediaKindVideo, true
	case strings.HasPrefix(mediaType, "audio/"):
		return models.MediaKindAudio, true
	case strings.HasPrefix(mediaType, "image/"):
		return models.MediaKindImage, true
	default:
		return "", false
	}
}
