// Package extract turns rendered pages into structured records with goquery.
package extract

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sternrassler/render-pool/pkg/pool"
)

// ErrEmptyPage is returned for pages without content.
var ErrEmptyPage = errors.New("page content empty")

// Record is the structured content of one rendered page.
type Record struct {
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Headings    []string          `json:"headings,omitempty"`
	Links       []string          `json:"links,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// Parser extracts a Record from a page. Fields maps a record field name to a
// CSS selector; the trimmed text of every match is joined with a single space.
type Parser struct {
	Fields map[string]string
}

// NewParser creates a parser with the given custom fields (may be nil).
func NewParser(fields map[string]string) *Parser {
	return &Parser{Fields: fields}
}

// Parse implements batch.Parser[Record].
func (p *Parser) Parse(page *pool.Page) (Record, error) {
	if page == nil || strings.TrimSpace(page.Content) == "" {
		return Record{}, ErrEmptyPage
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Content))
	if err != nil {
		return Record{}, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script,noscript,style").Remove()

	base := page.URL
	if page.Response != nil && page.Response.URL != "" {
		base = page.Response.URL
	}

	rec := Record{
		URL:         page.URL,
		Title:       collapse(doc.Find("title").First().Text()),
		Description: metaContent(doc, `meta[name="description"]`),
		Headings:    headings(doc),
		Links:       links(doc, base),
	}
	if rec.Description == "" {
		rec.Description = metaContent(doc, `meta[property="og:description"]`)
	}
	if rec.Title == "" {
		rec.Title = metaContent(doc, `meta[property="og:title"]`)
	}

	if len(p.Fields) > 0 {
		rec.Fields = make(map[string]string, len(p.Fields))
		for name, sel := range p.Fields {
			var parts []string
			doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
				if text := collapse(s.Text()); text != "" {
					parts = append(parts, text)
				}
			})
			rec.Fields[name] = strings.Join(parts, " ")
		}
	}

	return rec, nil
}

func metaContent(doc *goquery.Document, sel string) string {
	content, _ := doc.Find(sel).First().Attr("content")
	return collapse(content)
}

func headings(doc *goquery.Document) []string {
	var out []string
	doc.Find("h1,h2,h3").Each(func(_ int, s *goquery.Selection) {
		if text := collapse(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// links returns the absolute http(s) links of the document, sorted and
// without duplicates or fragments.
func links(doc *goquery.Document, base string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		baseURL = nil
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}

		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if baseURL != nil {
			u = baseURL.ResolveReference(u)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		u.Fragment = ""
		seen[u.String()] = struct{}{}
	})

	out := make([]string, 0, len(seen))
	for link := range seen {
		out = append(out, link)
	}
	sort.Strings(out)
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
