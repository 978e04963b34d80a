package cleaner

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"github.com/hvpham-yorku/group1-competitor-intelligence/models"
)

// Cleaner renders product description HTML in the format a caller asked for.
//
// The converter is created once and reused across all requests (goroutine-safe).
type Cleaner struct {
	mdConverter *converter.Converter
}

// NewCleaner initialises the Cleaner with a pre-configured Markdown converter.
func NewCleaner() *Cleaner {
	return &Cleaner{
		mdConverter: newMarkdownConverter(),
	}
}

var reSpaces = regexp.MustCompile(`\s+`)

// Description converts a product description to format ("html", "text" or
// "markdown"). sourceURL resolves relative links in Markdown output.
//
// Formatting never fails: when conversion errors, the HTML is returned.
func (c *Cleaner) Description(html, format, sourceURL string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	switch format {
	case models.DescriptionText:
		return toText(FilterContent(html, noiseSelectors))
	case models.DescriptionMarkdown:
		md, err := ToMarkdown(c.mdConverter, html, sourceURL)
		if err != nil {
			slog.Debug("markdown conversion failed, keeping html", "source", sourceURL, "error", err)
			return html
		}
		return strings.TrimSpace(md)
	default:
		return html
	}
}

// toText extracts visible text from an HTML fragment with whitespace collapsed.
func toText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("br, p, li, div, h1, h2, h3, h4, h5, h6, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return strings.TrimSpace(reSpaces.ReplaceAllString(doc.Text(), " "))
}
