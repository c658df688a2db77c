// Package policy provides the pure URL eligibility predicates used by the
// crawl scheduler and link classification.
package policy

import (
	"net/url"
	"strings"
)

// IsExcluded reports whether any exclude pattern appears in the URL.
// Matching is a case-insensitive substring check over the whole URL.
func IsExcluded(rawURL string, patterns []string) bool {
	lower := strings.ToLower(rawURL)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// IsAllowedDomain reports whether the URL's host contains at least one
// allowed-domain substring. The substring match is deliberately loose so
// that subdomains pass without explicit listing; it also means a domain
// embedded in a longer host ("example.com.evil.net") passes. Malformed
// URLs fail closed.
func IsAllowedDomain(rawURL string, allowedDomains []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, domain := range allowedDomains {
		if domain == "" {
			continue
		}
		if strings.Contains(host, strings.ToLower(domain)) {
			return true
		}
	}
	return false
}

// IsDocumentURL reports whether the URL ends with one of the configured
// document extensions (case-insensitive).
func IsDocumentURL(rawURL string, extensions []string) bool {
	lower := strings.ToLower(rawURL)
	for _, ext := range extensions {
		if ext == "" {
			continue
		}
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
