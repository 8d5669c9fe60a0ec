package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/nova/internal/market"
	"github.com/kalambet/nova/internal/news"
)

const (
	unavailable    = "Unavailable"
	snapshotZone   = "America/New_York"
	snapshotLayout = "Monday, January 02, 2006 03:04 PM"
	briefHeadlines = 5
)

// DefaultBriefTickers are used when a brief is requested without tickers.
var DefaultBriefTickers = []string{"AAPL", "MSFT", "NVDA", "TSLA"}

// Snapshot is the dashboard header: weather, macro figures and local time.
// Sections that cannot be fetched read "Unavailable".
type Snapshot struct {
	City    string `json:"city"`
	Weather string `json:"weather"`
	Macro   string `json:"macro"`
	Time    string `json:"time"`
}

// Snapshot gathers the dashboard header concurrently.
func (a *Assistant) Snapshot(ctx context.Context, now time.Time) Snapshot {
	s := Snapshot{City: "Boston", Weather: unavailable, Macro: unavailable}
	if loc, err := time.LoadLocation(snapshotZone); err == nil {
		now = now.In(loc)
	}
	s.Time = now.Format(snapshotLayout)

	var g errgroup.Group
	if a.weatherSrc != nil {
		s.City = a.weatherSrc.City()
		g.Go(func() error {
			if cur, err := a.weatherSrc.Current(ctx); err == nil {
				s.Weather = cur.String()
			}
			return nil
		})
	}
	if a.macroSrc != nil {
		g.Go(func() error {
			if line, err := a.macroSrc.Line(ctx); err == nil {
				s.Macro = line
			}
			return nil
		})
	}
	g.Wait()
	return s
}

// Outlook is one ticker line of a brief.
type Outlook struct {
	Symbol  string `json:"symbol"`
	Outlook string `json:"outlook"`
}

// Brief is the daily market summary.
type Brief struct {
	Date      string          `json:"date"`
	Mood      float64         `json:"mood"`
	Outlooks  []Outlook       `json:"outlooks"`
	Headlines []news.Headline `json:"headlines"`
}

// Brief builds the daily market summary for tickers, or DefaultBriefTickers
// when none are given.
func (a *Assistant) Brief(ctx context.Context, tickers []string, now time.Time) Brief {
	if len(tickers) == 0 {
		tickers = DefaultBriefTickers
	}

	var (
		quotes []Quote
		hs     []news.Headline
		calm   = 50.0
	)
	var g errgroup.Group
	g.Go(func() error {
		quotes = a.Quotes(ctx, tickers)
		return nil
	})
	if a.headlines != nil {
		g.Go(func() error {
			hs = a.headlines.Headlines(ctx, news.DefaultTopic)
			return nil
		})
	}
	if a.quotes != nil {
		g.Go(func() error {
			calm = a.quotes.Calmness(ctx)
			return nil
		})
	}
	g.Wait()

	b := Brief{
		Date: now.Format(time.DateOnly),
		Mood: market.MarketMood(calm, market.HeadlineSentiment(news.Titles(hs))),
	}
	for _, q := range quotes {
		o := Outlook{Symbol: q.Symbol, Outlook: q.Signal}
		if q.Err != nil {
			o.Outlook = "no recent data"
		}
		b.Outlooks = append(b.Outlooks, o)
	}
	if len(hs) > briefHeadlines {
		hs = hs[:briefHeadlines]
	}
	b.Headlines = hs
	return b
}

// Text renders the brief as plain text.
func (b Brief) Text() string {
	var sb strings.Builder
	sb.WriteString("Daily Market Brief\n")
	fmt.Fprintf(&sb, "Date: %s\n\n", b.Date)
	fmt.Fprintf(&sb, "Market Mood: %.1f/100\n\n", b.Mood)
	sb.WriteString("Ticker Outlooks:\n")
	for _, o := range b.Outlooks {
		fmt.Fprintf(&sb, "  %s: %s\n", o.Symbol, o.Outlook)
	}
	sb.WriteString("\nTop Headlines:\n")
	for _, h := range b.Headlines {
		fmt.Fprintf(&sb, "  • %s (%s)\n", h.Title, h.Source)
	}
	return sb.String()
}
