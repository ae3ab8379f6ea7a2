// Package parser extracts the title, paragraph text, and anchor targets
// from an HTML page.
package parser

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/BenjaminSRussell/origincrawl/internal/types"
)

// Parser implements the crawler's content extraction. It holds no state.
type Parser struct{}

// New creates a parser
func New() *Parser {
	return &Parser{}
}

// Extract pulls content out of an HTML body. It never fails: malformed
// markup yields whatever the tokenizer recovers.
func (p *Parser) Extract(body []byte) types.Content {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return types.Content{}
	}

	return types.Content{
		Title:    strings.TrimSpace(doc.Find("title").First().Text()),
		BodyText: BodyText(doc),
		Links:    Hrefs(doc),
	}
}

// BodyText joins the trimmed text of each <p>, one per line.
// Paragraphs that mention an https: URL are skipped.
func BodyText(doc *goquery.Document) string {
	var parts []string
	doc.Find("p").Each(func(i int, s *goquery.Selection) {
		text := s.Text()
		if strings.Contains(text, "https:") {
			return
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n")
}

// Hrefs returns the raw href of every anchor, in document order, without
// duplicates. Resolution and scope checks are left to the caller.
func Hrefs(doc *goquery.Document) []string {
	links := make([]string, 0)
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || seen[href] {
			return
		}
		seen[href] = true
		links = append(links, href)
	})

	return links
}
