package assistant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/nova/internal/llm"
	"github.com/kalambet/nova/internal/market"
)

const quotePeriod = "1mo"

var tickerSplit = regexp.MustCompile(`[,\s]+`)

// Words that look like tickers but are part of the request.
var tickerStopWords = map[string]bool{
	"PRICE": true, "PRICES": true, "OF": true, "CHECK": true, "STOCK": true, "STOCKS": true,
	"QUOTE": true, "QUOTES": true, "CHART": true, "AND": true, "THE": true, "FOR": true,
	"SHOW": true, "ME": true, "WHAT": true, "IS": true, "ARE": true, "GET": true, "A": true,
	"I": true, "TO": true, "ON": true, "HOW": true, "IN": true, "MY": true,
}

// ExtractTickers returns the distinct ticker-like words of text in order of
// first appearance: alphabetic tokens of one to five letters, upper-cased,
// that are not request words such as "price" or "and".
func ExtractTickers(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range tickerSplit.Split(strings.ToUpper(text), -1) {
		tok = strings.Trim(tok, "?!.;:$()\"'")
		if len(tok) < 1 || len(tok) > 5 || !isAlpha(tok) {
			continue
		}
		if tickerStopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return s != ""
}

// Quote is the last close and outlook for one symbol.
type Quote struct {
	Symbol string  `json:"symbol"`
	Close  float64 `json:"close,omitempty"`
	Trend  string  `json:"trend,omitempty"`
	Signal string  `json:"signal,omitempty"`
	Err    error   `json:"-"`
}

// Quotes fetches a month of history for each symbol concurrently. Failures
// are reported per symbol in Quote.Err; the result keeps the input order.
func (a *Assistant) Quotes(ctx context.Context, symbols []string) []Quote {
	out := make([]Quote, len(symbols))
	var g errgroup.Group
	g.SetLimit(quoteConcurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			out[i] = a.quote(ctx, sym)
			return nil
		})
	}
	g.Wait()
	return out
}

func (a *Assistant) quote(ctx context.Context, sym string) Quote {
	q := Quote{Symbol: sym}
	if a.quotes == nil {
		q.Err = errors.New("quotes unavailable")
		return q
	}
	bars, err := a.quotes.History(ctx, sym, quotePeriod)
	if err != nil {
		q.Err = err
		return q
	}
	closes := market.Closes(bars)
	q.Close = closes[len(closes)-1]
	q.Trend = market.TrendSignal(closes)
	if sig, ok := market.DecisionSignal(closes); ok {
		q.Signal = sig
	} else {
		q.Signal = market.SignalHold
	}
	return q
}

func (q Quote) line() string {
	switch {
	case errors.Is(q.Err, market.ErrNoData):
		return fmt.Sprintf("- **%s** — no recent data.", q.Symbol)
	case q.Err != nil:
		return fmt.Sprintf("- **%s** — error fetching data.", q.Symbol)
	default:
		return fmt.Sprintf("- **%s** — $%.2f • %s • %s", q.Symbol, q.Close, q.Trend, q.Signal)
	}
}

func (a *Assistant) stocks(ctx context.Context, msg string, _ []llm.Message) string {
	tickers := ExtractTickers(msg)
	if len(tickers) == 0 {
		return "I didn’t see any valid tickers. Try something like: `price of AAPL and TSLA`."
	}

	var b strings.Builder
	b.WriteString("📈 **Stock prices (last close)**\n")
	for _, q := range a.Quotes(ctx, tickers) {
		b.WriteString(q.line())
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
