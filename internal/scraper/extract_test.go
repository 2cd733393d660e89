package scraper

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/galkatzh/JAMD-events/internal/event"
)

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestExtractHTML(t *testing.T) {
	base := mustURL(t, "https://www.jamd.ac.il")

	tests := []struct {
		name string
		html string
		want []event.RawRecord
	}{
		{
			name: "complete item",
			html: monthFragment,
			want: []event.RawRecord{{
				Title:    "Concert",
				DateText: "5 מרץ 20:00",
				Location: "Hall A",
				Link:     "https://www.jamd.ac.il/node/101",
			}},
		},
		{
			name: "missing location is left empty",
			html: `<div class="view-item-calendar_event">
				<div class="views-field-title"><a href="/he/node/7">Recital</a></div>
				<div class="views-field-field-event-date-1"><span class="date-display-single">12 באפריל, 18:30</span></div>
			</div>`,
			want: []event.RawRecord{{
				Title:    "Recital",
				DateText: "12 באפריל, 18:30",
				Link:     "https://www.jamd.ac.il/he/node/7",
			}},
		},
		{
			name: "item without title is dropped",
			html: `<div class="view-item-calendar_event">
				<div class="views-field-field-event-date-1"><span class="date-display-single">1 מאי 10:00</span></div>
				<div class="views-field-field-event-location"><div class="field-content">Hall B</div></div>
			</div>`,
			want: []event.RawRecord{},
		},
		{
			name: "whitespace is collapsed and absolute links kept",
			html: `<div class="view-item-calendar_event">
				<div class="views-field-title"><a href="https://tickets.example.com/e/1">
					Jazz
					Night
				</a></div>
				<div class="views-field-field-event-date-1"><span class="date-display-single"> 20  מאי   21:00 </span></div>
				<div class="views-field-field-event-location"><div class="field-content">Club</div></div>
			</div>`,
			want: []event.RawRecord{{
				Title:    "Jazz Night",
				DateText: "20 מאי 21:00",
				Location: "Club",
				Link:     "https://tickets.example.com/e/1",
			}},
		},
		{
			name: "title without link",
			html: `<div class="view-item-calendar_event">
				<div class="views-field-title"><a>Open Day</a></div>
				<div class="views-field-field-event-date-1"><span class="date-display-single">3 יוני 09:00</span></div>
				<div class="views-field-field-event-location"><div class="field-content">Lobby</div></div>
			</div>`,
			want: []event.RawRecord{{Title: "Open Day", DateText: "3 יוני 09:00", Location: "Lobby"}},
		},
		{
			name: "unrelated markup",
			html: `<div class="view-empty"><p>אין אירועים</p></div>`,
			want: []event.RawRecord{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractHTML(strings.NewReader(tt.html), base)
			if err != nil {
				t.Fatalf("ExtractHTML() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d records, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("record %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestExtract_OnlyInsertCommands(t *testing.T) {
	html := `<div class="view-item-calendar_event">
		<div class="views-field-title"><a href="/node/1">A</a></div>
	</div>`
	data, err := json.Marshal(html)
	if err != nil {
		t.Fatal(err)
	}
	commands := []Command{
		{Command: "settings", Data: []byte(`{"basePath":"/"}`)},
		{Command: "insert", Data: data},
		{Command: "insert"},
		{Command: "insert", Data: []byte(`{"not":"a string"}`)},
		{Command: "insert", Data: data},
	}

	records, err := Extract(commands, mustURL(t, "https://www.jamd.ac.il"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(records), records)
	}
	if records[0].Link != "https://www.jamd.ac.il/node/1" {
		t.Errorf("link = %q", records[0].Link)
	}
}
