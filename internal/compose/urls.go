package compose

import (
	"net/url"
	"strings"
)

// URLBuilder renders the public tracking URLs for one dispatch token.
// Only the token and recipient id appear in the URLs; the campaign's
// internal id and owner never do.
type URLBuilder struct {
	base string
}

// NewURLBuilder returns a builder rooted at baseURL (scheme and host,
// optionally a path prefix).
func NewURLBuilder(baseURL string) URLBuilder {
	return URLBuilder{base: strings.TrimRight(baseURL, "/")}
}

// Open returns the open-tracking pixel URL.
func (b URLBuilder) Open(token, recipientID string) string {
	return b.base + "/api/track/open/" + url.PathEscape(token) + "?lead=" + url.QueryEscape(recipientID)
}

// Click returns the click redirect URL for destination.
func (b URLBuilder) Click(token, recipientID, destination string) string {
	return b.base + "/api/track/click/" + url.PathEscape(token) +
		"?lead=" + url.QueryEscape(recipientID) + "&url=" + url.QueryEscape(destination)
}

// Unsubscribe returns the unsubscribe page URL.
func (b URLBuilder) Unsubscribe(token, recipientID string) string {
	return b.base + "/api/track/unsubscribe/" + url.PathEscape(token) + "?lead=" + url.QueryEscape(recipientID)
}

// IsInternal reports whether raw points at the tracking host itself.
func (b URLBuilder) IsInternal(raw string) bool {
	if b.base == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	base, err := url.Parse(b.base)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, base.Host)
}
