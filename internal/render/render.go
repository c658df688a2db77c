// Package render provides the page renderer used to visit pages and
// extract the links they expose after JavaScript has settled.
package render

import (
	"context"
	"net/url"
	"strings"
)

// RenderedPage is the result of navigating to a page. All link slices hold
// absolute URLs, resolved against the page's own (final) URL.
type RenderedPage struct {
	// URL is the page's final URL after redirects.
	URL string
	// AnchorLinks are href targets of a[href] elements, with mailto: and
	// tel: schemes filtered out.
	AnchorLinks []string
	// EmbeddedLinks are src/data targets of iframe, object and embed
	// elements. Embedded documents are discovered here even when no anchor
	// points at them.
	EmbeddedLinks []string
}

// Renderer navigates to a URL and returns the rendered page's links.
type Renderer interface {
	Navigate(ctx context.Context, rawURL string) (*RenderedPage, error)
}

// ResolveLinks resolves each link against the base URL and drops links
// that cannot be parsed. Already-absolute links pass through unchanged.
func ResolveLinks(base string, links []string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		baseURL = nil
	}

	resolved := make([]string, 0, len(links))
	for _, link := range links {
		link = strings.TrimSpace(link)
		if link == "" {
			continue
		}
		ref, err := url.Parse(link)
		if err != nil {
			continue
		}
		if ref.IsAbs() {
			resolved = append(resolved, ref.String())
			continue
		}
		if baseURL == nil {
			continue
		}
		resolved = append(resolved, baseURL.ResolveReference(ref).String())
	}
	return resolved
}
