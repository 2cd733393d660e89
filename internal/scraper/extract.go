package scraper

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/galkatzh/JAMD-events/internal/event"
)

// Selectors for the calendar view markup
const (
	itemSelector     = "div.view-item-calendar_event"
	titleSelector    = ".views-field-title a"
	dateSelector     = ".views-field-field-event-date-1 span.date-display-single"
	locationSelector = ".views-field-field-event-location .field-content"
)

// Extract collects raw records from the insert commands of an AJAX
// response. Items without a title are dropped; any other missing field is
// left empty for the engine to reject.
func Extract(commands []Command, base *url.URL) ([]event.RawRecord, error) {
	records := make([]event.RawRecord, 0)
	for i, cmd := range commands {
		html, ok := cmd.HTML()
		if !ok {
			continue
		}
		found, err := ExtractHTML(strings.NewReader(html), base)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		records = append(records, found...)
	}
	return records, nil
}

// ExtractHTML parses one rendered calendar fragment
func ExtractHTML(r io.Reader, base *url.URL) ([]event.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	records := make([]event.RawRecord, 0)
	doc.Find(itemSelector).Each(func(i int, item *goquery.Selection) {
		title := item.Find(titleSelector).First()
		rec := event.RawRecord{
			Title:    cleanText(title.Text()),
			DateText: cleanText(item.Find(dateSelector).First().Text()),
			Location: cleanText(item.Find(locationSelector).First().Text()),
		}
		if rec.Title == "" {
			return
		}
		if href, ok := title.Attr("href"); ok {
			rec.Link = resolveLink(base, href)
		}
		records = append(records, rec)
	})

	return records, nil
}

// cleanText trims and collapses runs of whitespace so that identities do
// not depend on markup indentation.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
