package scraper

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/denisAlshanov/mediarelay/internal/models"
)

// jsonLDNodes flattens every ld+json block, including arrays and @graph
// members, into a list of objects in document order.
func jsonLDNodes(doc *goquery.Document) []map[string]any {
	var nodes []map[string]any

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var payload any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &payload); err != nil {
			return
		}
		nodes = appendNodes(nodes, payload)
	})

	return nodes
}

func appendNodes(nodes []map[string]any, value any) []map[string]any {
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			nodes = appendNodes(nodes, item)
		}
	case map[string]any:
		nodes = append(nodes, v)
		if graph, ok := v["@graph"]; ok {
			nodes = appendNodes(nodes, graph)
		}
	}
	return nodes
}

func jsonLDVideo(nodes []map[string]any) (string, models.MediaKind) {
	for _, node := range nodes {
		kind := models.MediaKindVideo
		switch {
		case isType(node, "ImageObject"):
			kind = models.MediaKindImage
		case isType(node, "AudioObject"):
			kind = models.MediaKindAudio
		}
		if u := stringField(node, "contentUrl"); u != "" {
			return u, kind
		}
		if u := stringField(node, "embedUrl"); u != "" {
			return u, models.MediaKindVideo
		}
		for _, video := range objects(node["video"]) {
			if u := stringField(video, "contentUrl"); u != "" {
				return u, models.MediaKindVideo
			}
		}
		for _, audio := range objects(node["audio"]) {
			if u := stringField(audio, "contentUrl"); u != "" {
				return u, models.MediaKindAudio
			}
		}
	}
	return "", ""
}

func jsonLDImage(nodes []map[string]any) string {
	for _, node := range nodes {
		if u := imageValue(node["image"]); u != "" {
			return u
		}
	}
	return ""
}

// imageValue accepts a URL string, an ImageObject, or a list of either.
func imageValue(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		for _, item := range v {
			if u := imageValue(item); u != "" {
				return u
			}
		}
	case map[string]any:
		if u := stringField(v, "url"); u != "" {
			return u
		}
		return stringField(v, "contentUrl")
	}
	return ""
}

func objects(value any) []map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return []map[string]any{v}
	case []any:
		var out []map[string]any
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func stringField(node map[string]any, key string) string {
	if s, ok := node[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func isType(node map[string]any, name string) bool {
	switch t := node["@type"].(type) {
	case string:
		return t == name
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == name {
				return true
			}
		}
	}
	return false
}
