package crawler

import (
	"github.com/atlasingest/document-crawler/internal/policy"
	"github.com/atlasingest/document-crawler/internal/render"
)

// classify splits a rendered page's links into document URLs and page-link
// candidates. Anchor links matching a document extension become documents;
// the rest are traversal candidates. Embedded links (iframes, objects,
// embeds) only ever contribute documents. Duplicates within one page are
// collapsed; cross-page dedup is the registry's job.
func classify(page *render.RenderedPage, extensions []string) (documents, pageLinks []string) {
	seenDoc := make(map[string]struct{})
	seenPage := make(map[string]struct{})

	for _, link := range page.AnchorLinks {
		if policy.IsDocumentURL(link, extensions) {
			if _, ok := seenDoc[link]; !ok {
				seenDoc[link] = struct{}{}
				documents = append(documents, link)
			}
			continue
		}
		if _, ok := seenPage[link]; !ok {
			seenPage[link] = struct{}{}
			pageLinks = append(pageLinks, link)
		}
	}

	for _, link := range page.EmbeddedLinks {
		if !policy.IsDocumentURL(link, extensions) {
			continue
		}
		if _, ok := seenDoc[link]; !ok {
			seenDoc[link] = struct{}{}
			documents = append(documents, link)
		}
	}

	return documents, pageLinks
}
