// Package assistant answers chat messages by routing them to live data
// sources (quotes, mail, calendar, weather, macro, news) or to an LLM.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/nova/internal/google"
	"github.com/kalambet/nova/internal/llm"
	"github.com/kalambet/nova/internal/market"
	"github.com/kalambet/nova/internal/news"
	"github.com/kalambet/nova/internal/weather"
)

// Handler names reported with each reply.
const (
	HandlerStocks   = "stocks"
	HandlerInbox    = "inbox"
	HandlerCalendar = "calendar"
	HandlerWeather  = "weather"
	HandlerMacro    = "macro"
	HandlerNews     = "news"
	HandlerLLM      = "llm"
)

const (
	DefaultSystemPrompt = "You are NOVA, a friendly, intelligent finance and productivity assistant. Be concise."
	inboxSize           = 5
	agendaSize          = 5
	quoteConcurrency    = 4
)

// LLM completes a conversation.
type LLM interface {
	Configured() bool
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Quotes provides price history.
type Quotes interface {
	History(ctx context.Context, symbol, period string) ([]market.Bar, error)
	Calmness(ctx context.Context) float64
}

// Headlines provides news titles; it never fails.
type Headlines interface {
	Headlines(ctx context.Context, topic string) []news.Headline
}

// Weather reports current conditions.
type Weather interface {
	Current(ctx context.Context) (weather.Current, error)
	City() string
}

// Macro renders the macro snapshot line.
type Macro interface {
	Line(ctx context.Context) (string, error)
}

// Mailbox lists recent mail.
type Mailbox interface {
	Recent(ctx context.Context, n int) ([]google.Message, error)
}

// Agenda lists upcoming events.
type Agenda interface {
	Upcoming(ctx context.Context, n int) ([]google.Event, error)
}

// GoogleMode selects how inbox and calendar requests are served.
type GoogleMode int

const (
	// GoogleDemo renders the built-in sample inbox and calendar.
	GoogleDemo GoogleMode = iota
	// GoogleLoggedOut means a client is configured but no account is linked.
	GoogleLoggedOut
	// GoogleLive reads the linked account.
	GoogleLive
)

// Reply is the routed answer to one message.
type Reply struct {
	Handler string `json:"handler"`
	Text    string `json:"text"`
}

type route struct {
	handler  string
	keywords []string
	run      func(a *Assistant, ctx context.Context, msg string, history []llm.Message) string
}

// routes are checked in order against the lower-cased message; the first
// route with a matching keyword answers.
var routes = []route{
	{HandlerStocks, []string{"stock", "price", "quote", "chart"}, (*Assistant).stocks},
	{HandlerInbox, []string{"email", "inbox", "mail"}, (*Assistant).inbox},
	{HandlerCalendar, []string{"calendar", "schedule", "event", "upcoming"}, (*Assistant).calendar},
	{HandlerWeather, []string{"weather", "temperature", "forecast"}, (*Assistant).weather},
	{HandlerMacro, []string{"inflation", "unemployment", "macro", "fed funds"}, (*Assistant).macro},
	{HandlerNews, []string{"news", "headline", "market mood"}, (*Assistant).news},
}

// Option configures an Assistant.
type Option func(*Assistant)

func WithLLM(l LLM, systemPrompt string) Option {
	return func(a *Assistant) {
		a.llm = l
		if systemPrompt != "" {
			a.systemPrompt = systemPrompt
		}
	}
}

func WithQuotes(q Quotes) Option       { return func(a *Assistant) { a.quotes = q } }
func WithHeadlines(h Headlines) Option { return func(a *Assistant) { a.headlines = h } }
func WithWeather(w Weather) Option     { return func(a *Assistant) { a.weatherSrc = w } }
func WithMacro(m Macro) Option         { return func(a *Assistant) { a.macroSrc = m } }

// WithGoogle serves inbox and calendar requests from a linked account.
func WithGoogle(mail Mailbox, cal Agenda) Option {
	return func(a *Assistant) {
		a.google = GoogleLive
		a.mailbox = mail
		a.agenda = cal
	}
}

// WithGoogleLoggedOut answers inbox and calendar requests with a login hint.
func WithGoogleLoggedOut() Option {
	return func(a *Assistant) { a.google = GoogleLoggedOut }
}

// Assistant routes chat messages. A nil source makes its route answer
// "<Resource> unavailable".
type Assistant struct {
	llm          LLM
	systemPrompt string
	quotes       Quotes
	headlines    Headlines
	weatherSrc   Weather
	macroSrc     Macro
	google       GoogleMode
	mailbox      Mailbox
	agenda       Agenda
}

// New creates an Assistant.
func New(opts ...Option) *Assistant {
	a := &Assistant{systemPrompt: DefaultSystemPrompt}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Route returns the handler that would answer msg.
func Route(msg string) string {
	lower := strings.ToLower(msg)
	for _, r := range routes {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.handler
			}
		}
	}
	return HandlerLLM
}

// Reply answers msg. history holds earlier turns of the conversation, oldest
// first, and is only used by the LLM fallback.
func (a *Assistant) Reply(ctx context.Context, msg string, history []llm.Message) Reply {
	handler := Route(msg)
	for _, r := range routes {
		if r.handler == handler {
			return Reply{Handler: handler, Text: r.run(a, ctx, msg, history)}
		}
	}
	return Reply{Handler: HandlerLLM, Text: a.chat(ctx, msg, history)}
}

func (a *Assistant) chat(ctx context.Context, msg string, history []llm.Message) string {
	if a.llm == nil || !a.llm.Configured() {
		return "AI not configured. Please set NOVA_LLM_API_KEY or run `nova config set-secret llm.api_key <key>`."
	}
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: a.systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: msg})

	answer, err := a.llm.Complete(ctx, messages)
	if err != nil {
		return fmt.Sprintf("AI error: %v", err)
	}
	return answer
}

func (a *Assistant) weather(ctx context.Context, _ string, _ []llm.Message) string {
	if a.weatherSrc == nil {
		return "Weather unavailable"
	}
	cur, err := a.weatherSrc.Current(ctx)
	if err != nil {
		return "Weather unavailable"
	}
	return fmt.Sprintf("🌦 **Weather in %s:** %s", a.weatherSrc.City(), cur)
}

func (a *Assistant) macro(ctx context.Context, _ string, _ []llm.Message) string {
	if a.macroSrc == nil {
		return "Macro data unavailable"
	}
	line, err := a.macroSrc.Line(ctx)
	if err != nil {
		return "Macro data unavailable"
	}
	return "📊 **Macro snapshot:** " + line
}

func (a *Assistant) news(ctx context.Context, _ string, _ []llm.Message) string {
	if a.headlines == nil {
		return "News unavailable"
	}
	hs := a.headlines.Headlines(ctx, news.DefaultTopic)

	var b strings.Builder
	b.WriteString("📰 **Latest headlines**\n\n")
	for _, h := range hs {
		fmt.Fprintf(&b, "- %s (%s)\n", h.Title, h.Source)
	}
	fmt.Fprintf(&b, "\n**Market mood:** %.1f/100", a.mood(ctx, hs))
	return b.String()
}

// mood blends VIX calmness with headline tone; without a quote source the
// calmness part is neutral.
func (a *Assistant) mood(ctx context.Context, hs []news.Headline) float64 {
	calm := 50.0
	if a.quotes != nil {
		calm = a.quotes.Calmness(ctx)
	}
	return market.MarketMood(calm, market.HeadlineSentiment(news.Titles(hs)))
}
