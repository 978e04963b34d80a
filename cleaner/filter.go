package cleaner

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// noiseSelectors are never part of a readable description.
var noiseSelectors = []string{"script", "style", "noscript", "iframe", "template"}

// FilterContent removes every element matching excludeTags from an HTML
// fragment and returns the remaining markup.
//
// Selectors that do not compile are logged and skipped. If no selector is
// usable, or the fragment cannot be parsed, the input is returned unchanged.
func FilterContent(html string, excludeTags []string) string {
	exclude, ok := compileGroup(excludeTags)
	if !ok {
		return html
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.FindMatcher(exclude).Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	result, err := body.Html()
	if err != nil {
		return html
	}
	return result
}

// compileGroup compiles the valid selectors into one selector group.
func compileGroup(selectors []string) (cascadia.Selector, bool) {
	valid := make([]string, 0, len(selectors))
	for _, sel := range selectors {
		if _, err := cascadia.ParseGroup(sel); err != nil {
			slog.Debug("skipping invalid selector", "selector", sel, "error", err)
			continue
		}
		valid = append(valid, sel)
	}
	if len(valid) == 0 {
		return nil, false
	}
	return cascadia.MustCompile(strings.Join(valid, ", ")), true
}
