// Package identity maps target hosts to ordered ladders of outbound request
// identities.
package identity

import (
	"fmt"
	"maps"
	"net"
	"net/http"
	"strings"

	"github.com/denisAlshanov/mediarelay/internal/config"
	"github.com/denisAlshanov/mediarelay/internal/models"
)

type Category string

const (
	CategoryYouTube   Category = "youtube"
	CategoryInstagram Category = "instagram"
	CategoryTikTok    Category = "tiktok"
	CategoryTwitter   Category = "twitter"
	CategoryGeneric   Category = "generic"
)

const (
	FingerprintDefault = ""
	FingerprintChrome  = "chrome"
)

const (
	ProfileBare    = "bare"
	ProfileDesktop = "desktop"
	ProfileMobile  = "mobile"
)

const (
	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	mobileUserAgent  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1"
	bareUserAgent    = "mediarelay/1.0"
)

var categoryDomains = []struct {
	category Category
	domains  []string
}{
	{CategoryYouTube, []string{"youtube.com", "youtu.be", "googlevideo.com", "ytimg.com"}},
	{CategoryInstagram, []string{"instagram.com", "cdninstagram.com", "fbcdn.net", "facebook.com"}},
	{CategoryTikTok, []string{"tiktok.com", "tiktokcdn.com", "tiktokcdn-us.com", "tiktokv.com", "byteoversea.com"}},
	{CategoryTwitter, []string{"twitter.com", "x.com", "twimg.com"}},
}

// Table is immutable after construction and safe for concurrent use.
type Table struct {
	profiles map[string]models.IdentityProfile
	ladders  map[Category][]string
}

func defaultProfiles() map[string]models.IdentityProfile {
	browserHeaders := map[string]string{
		"Accept":          "*/*",
		"Accept-Language": "en-US,en;q=0.9",
	}
	instagram := "https://www.instagram.com/"
	tiktok := "https://www.tiktok.com/"

	return map[string]models.IdentityProfile{
		ProfileBare: {
			Name:      ProfileBare,
			UserAgent: bareUserAgent,
		},
		ProfileDesktop: {
			Name:         ProfileDesktop,
			UserAgent:    desktopUserAgent,
			ExtraHeaders: browserHeaders,
		},
		ProfileMobile: {
			Name:         ProfileMobile,
			UserAgent:    mobileUserAgent,
			ExtraHeaders: browserHeaders,
		},
		"desktop-instagram": {
			Name:         "desktop-instagram",
			UserAgent:    desktopUserAgent,
			Referer:      &instagram,
			ExtraHeaders: browserHeaders,
		},
		"mobile-instagram": {
			Name:         "mobile-instagram",
			UserAgent:    mobileUserAgent,
			Referer:      &instagram,
			ExtraHeaders: browserHeaders,
		},
		"desktop-tiktok": {
			Name:         "desktop-tiktok",
			UserAgent:    desktopUserAgent,
			Referer:      &tiktok,
			ExtraHeaders: browserHeaders,
		},
		"mobile-tiktok": {
			Name:         "mobile-tiktok",
			UserAgent:    mobileUserAgent,
			Referer:      &tiktok,
			ExtraHeaders: browserHeaders,
		},
		"chrome-tiktok": {
			Name:           "chrome-tiktok",
			UserAgent:      desktopUserAgent,
			Referer:        &tiktok,
			ExtraHeaders:   browserHeaders,
			TLSFingerprint: FingerprintChrome,
		},
		"chrome-desktop": {
			Name:           "chrome-desktop",
			UserAgent:      desktopUserAgent,
			ExtraHeaders:   browserHeaders,
			TLSFingerprint: FingerprintChrome,
		},
	}
}

func defaultLadders() map[Category][]string {
	return map[Category][]string{
		CategoryYouTube:   {ProfileBare, ProfileDesktop, ProfileMobile},
		CategoryInstagram: {"desktop-instagram", "mobile-instagram", ProfileBare},
		CategoryTikTok:    {"desktop-tiktok", "mobile-tiktok", "chrome-tiktok", ProfileBare},
		CategoryTwitter:   {ProfileBare, ProfileDesktop},
		CategoryGeneric:   {ProfileDesktop, ProfileMobile, "chrome-desktop", ProfileBare},
	}
}

// Default returns the built-in table.
func Default() *Table {
	return &Table{profiles: defaultProfiles(), ladders: defaultLadders()}
}

// NewTable builds the built-in table with file overrides applied. Unknown
// categories, unknown profile names, ladders that repeat a profile and
// unsupported fingerprints are rejected.
func NewTable(overrides config.IdentityConfig) (*Table, error) {
	t := Default()

	for name, pc := range overrides.Profiles {
		switch pc.TLSFingerprint {
		case FingerprintDefault, FingerprintChrome:
		default:
			return nil, fmt.Errorf("profile %q: unsupported tls_fingerprint %q", name, pc.TLSFingerprint)
		}
		profile := models.IdentityProfile{
			Name:           name,
			UserAgent:      pc.UserAgent,
			Referer:        models.StringPtr(pc.Referer),
			ExtraHeaders:   maps.Clone(pc.Headers),
			TLSFingerprint: pc.TLSFingerprint,
		}
		if profile.UserAgent == "" {
			profile.UserAgent = bareUserAgent
		}
		t.profiles[name] = profile
	}

	for rawCategory, ladder := range overrides.Ladders {
		category := Category(strings.ToLower(rawCategory))
		if _, ok := t.ladders[category]; !ok {
			return nil, fmt.Errorf("unknown identity category %q", rawCategory)
		}
		seen := make(map[string]bool, len(ladder))
		for _, name := range ladder {
			if _, ok := t.profiles[name]; !ok {
				return nil, fmt.Errorf("ladder %q references unknown profile %q", rawCategory, name)
			}
			if seen[name] {
				return nil, fmt.Errorf("ladder %q repeats profile %q", rawCategory, name)
			}
			seen[name] = true
		}
		if len(ladder) == 0 {
			return nil, fmt.Errorf("ladder %q is empty", rawCategory)
		}
		t.ladders[category] = append([]string(nil), ladder...)
	}

	return t, nil
}

// CategoryOf matches the host and its parent domains against the known
// categories.
func (t *Table) CategoryOf(host string) Category {
	host = normalizeHost(host)
	for _, entry := range categoryDomains {
		for _, domain := range entry.domains {
			if host == domain || strings.HasSuffix(host, "."+domain) {
				return entry.category
			}
		}
	}
	return CategoryGeneric
}

// Ladder returns copies of the profiles to try for host, in order.
func (t *Table) Ladder(host string) []models.IdentityProfile {
	names := t.ladders[t.CategoryOf(host)]
	ladder := make([]models.IdentityProfile, 0, len(names))
	for _, name := range names {
		ladder = append(ladder, cloneProfile(t.profiles[name]))
	}
	return ladder
}

// Profile returns a copy of the named profile.
func (t *Table) Profile(name string) (models.IdentityProfile, bool) {
	p, ok := t.profiles[name]
	if !ok {
		return models.IdentityProfile{}, false
	}
	return cloneProfile(p), true
}

// Apply sets exactly the profile's headers on req.
func Apply(req *http.Request, p models.IdentityProfile) {
	req.Header.Set("User-Agent", p.UserAgent)
	if p.Referer != nil {
		req.Header.Set("Referer", *p.Referer)
	} else {
		req.Header.Del("Referer")
	}
	for k, v := range p.ExtraHeaders {
		req.Header.Set(k, v)
	}
}

func cloneProfile(p models.IdentityProfile) models.IdentityProfile {
	if p.Referer != nil {
		ref := *p.Referer
		p.Referer = &ref
	}
	p.ExtraHeaders = maps.Clone(p.ExtraHeaders)
	return p
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}
