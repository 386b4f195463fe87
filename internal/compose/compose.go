package compose

import (
	"html"
	"regexp"
	"strings"

	"github.com/ignite/bulkmail/internal/domain"
)

// Message is the composed, tracking-instrumented content for one recipient.
type Message struct {
	Subject     string
	HTML        string
	Text        string
	Headers     map[string]string
	Attachments []domain.Attachment
}

var (
	placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)
	linkTagRe     = regexp.MustCompile(`(?i)<(?:a|area)\b[^>]*>`)
	hrefRe        = regexp.MustCompile(`(?i)(\shref\s*=\s*)(?:"([^"]*)"|'([^']*)'|([^\s"'>]+))`)
	bodyCloseRe   = regexp.MustCompile(`(?i)</body\s*>`)
)

// Composer binds Compose to a tracking base URL.
type Composer struct {
	urls URLBuilder
}

// NewComposer returns a Composer whose tracking URLs live under baseURL.
func NewComposer(baseURL string) *Composer {
	return &Composer{urls: NewURLBuilder(baseURL)}
}

// URLs exposes the builder used for tracking links.
func (c *Composer) URLs() URLBuilder { return c.urls }

// Compose builds the message for one recipient.
func (c *Composer) Compose(camp *domain.Campaign, r domain.Recipient) Message {
	return compose(camp, r, c.urls)
}

// Compose builds the message for one recipient with tracking URLs under baseURL.
func Compose(camp *domain.Campaign, r domain.Recipient, baseURL string) Message {
	return compose(camp, r, NewURLBuilder(baseURL))
}

func compose(camp *domain.Campaign, r domain.Recipient, urls URLBuilder) Message {
	unsubscribeURL := urls.Unsubscribe(camp.Token, r.ID)
	vars := map[string]string{
		"name":            r.Name,
		"email":           r.Email,
		"company_name":    r.CompanyName,
		"company":         r.CompanyName,
		"unsubscribe_url": unsubscribeURL,
	}

	body := substitute(camp.HTMLContent, vars, html.EscapeString)
	body = rewriteLinks(body, camp.Token, r.ID, urls)
	body = appendPixel(body, urls.Open(camp.Token, r.ID))

	atts := make([]domain.Attachment, len(camp.Attachments))
	copy(atts, camp.Attachments)

	return Message{
		Subject: substitute(camp.Subject, vars, nil),
		HTML:    body,
		Text:    substitute(camp.TextContent, vars, nil),
		Headers: map[string]string{
			"List-Unsubscribe":      "<" + unsubscribeURL + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		},
		Attachments: atts,
	}
}

// substitute replaces recognized placeholders. Unknown placeholders are kept
// verbatim, including their original spacing.
func substitute(s string, vars map[string]string, escape func(string) string) string {
	if s == "" || !strings.Contains(s, "{{") {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := vars[strings.ToLower(key)]
		if !ok {
			return m
		}
		if escape != nil {
			return escape(v)
		}
		return v
	})
}

// rewriteLinks points the href of every <a> and <area> tag with an absolute
// external http(s) target at the click redirect. Relative, fragment, mailto
// and tracking-host links are untouched, as is href text outside those tags.
func rewriteLinks(body, token, recipientID string, urls URLBuilder) string {
	return linkTagRe.ReplaceAllStringFunc(body, func(tag string) string {
		return hrefRe.ReplaceAllStringFunc(tag, func(m string) string {
			sub := hrefRe.FindStringSubmatch(m)
			prefix, raw, quote := sub[1], sub[2], `"`
			switch {
			case strings.HasPrefix(m[len(prefix):], "'"):
				raw, quote = sub[3], "'"
			case !strings.HasPrefix(m[len(prefix):], `"`):
				raw = sub[4]
			}
			dest := strings.TrimSpace(html.UnescapeString(raw))
			if !isAbsoluteHTTP(dest) || urls.IsInternal(dest) {
				return m
			}
			tracked := html.EscapeString(urls.Click(token, recipientID, dest))
			return prefix + quote + tracked + quote
		})
	})
}

func isAbsoluteHTTP(u string) bool {
	l := strings.ToLower(u)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

func appendPixel(body, pixelURL string) string {
	pixel := `<img src="` + html.EscapeString(pixelURL) + `" width="1" height="1" alt="" style="display:block;border:0;width:1px;height:1px" />`
	locs := bodyCloseRe.FindAllStringIndex(body, -1)
	if len(locs) == 0 {
		return body + pixel
	}
	at := locs[len(locs)-1][0]
	return body[:at] + pixel + body[at:]
}
