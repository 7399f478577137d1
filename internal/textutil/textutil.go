// Package textutil turns storefront HTML into plain text.
package textutil

import (
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

var blockBreaks = strings.NewReplacer(
	"<br>", " ", "<br/>", " ", "<br />", " ",
	"</p>", " ", "</li>", " ", "</div>", " ",
	"</h1>", " ", "</h2>", " ", "</h3>", " ", "</h4>", " ",
)

// StripHTML removes all markup, decodes entities and collapses whitespace.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	// Keep block boundaries as spaces so adjacent paragraphs don't fuse.
	s = blockBreaks.Replace(s)
	text := html.UnescapeString(strict.Sanitize(s))
	return strings.Join(strings.Fields(text), " ")
}

// ExtractText pulls readable text out of an HTML fragment, falling back to
// StripHTML when readability finds nothing useful.
func ExtractText(fragment string, pageURL *url.URL) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc := "<html><body><article>" + fragment + "</article></body></html>"
	article, err := readability.FromReader(strings.NewReader(doc), pageURL)
	if err == nil {
		text := strings.Join(strings.Fields(article.TextContent), " ")
		if len(text) > 100 {
			return text
		}
	}
	return StripHTML(fragment)
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
