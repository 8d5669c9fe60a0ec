package market

import (
	"math"
	"strings"
)

// Decision signals.
const (
	SignalOversold   = "📉 Oversold — potential rebound zone"
	SignalOverbought = "📈 Overbought — consider trimming"
	SignalFlat       = "⚖️ Flat momentum — neutral zone"
	SignalHold       = "💤 Stable / Hold"
)

// Trend signals.
const (
	TrendBullish = "Bullish 📈"
	TrendBearish = "Bearish 📉"
	TrendNeutral = "Neutral ➖"
)

// DefaultRSIPeriod is the lookback used by DecisionSignal.
const DefaultRSIPeriod = 14

// neutralScore is used when a mood input cannot be computed.
const neutralScore = 50

// RSI returns the relative strength index of the last close, using simple
// means of gains and losses over the last period price changes. ok is false
// when there are not enough closes or the window has no movement at all.
func RSI(closes []float64, period int) (rsi float64, ok bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	var gain, loss float64
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(period)
	loss /= float64(period)
	switch {
	case gain == 0 && loss == 0:
		return 0, false
	case loss == 0:
		return 100, true
	}
	return 100 - 100/(1+gain/loss), true
}

// DecisionSignal turns the last day's percentage change and RSI into
// buy/hold/sell style guidance. It needs at least two closes.
func DecisionSignal(closes []float64) (string, bool) {
	n := len(closes)
	if n < 2 || closes[n-2] == 0 {
		return "", false
	}
	change := (closes[n-1] - closes[n-2]) / closes[n-2] * 100
	rsi, haveRSI := RSI(closes, DefaultRSIPeriod)

	switch {
	case haveRSI && change < -2 && rsi < 30:
		return SignalOversold, true
	case haveRSI && change > 2 && rsi > 70:
		return SignalOverbought, true
	case math.Abs(change) < 0.3:
		return SignalFlat, true
	default:
		return SignalHold, true
	}
}

// TrendSignal compares the last close with the first one.
func TrendSignal(closes []float64) string {
	if len(closes) == 0 {
		return TrendNeutral
	}
	first, last := closes[0], closes[len(closes)-1]
	switch {
	case last > first:
		return TrendBullish
	case last < first:
		return TrendBearish
	default:
		return TrendNeutral
	}
}

// VIXCalmness maps a volatility index level to a 0-100 calmness score;
// low volatility is calm.
func VIXCalmness(vix float64) float64 {
	return round1(math.Max(0, math.Min(100, 100-vix*2)))
}

var (
	positiveWords = map[string]bool{
		"gain": true, "gains": true, "rise": true, "rises": true, "rally": true,
		"rallies": true, "surge": true, "surges": true, "record": true, "growth": true,
		"beat": true, "beats": true, "optimism": true, "support": true, "strong": true,
		"up": true, "higher": true, "boost": true, "recovery": true,
	}
	negativeWords = map[string]bool{
		"loss": true, "losses": true, "fall": true, "falls": true, "drop": true,
		"drops": true, "slump": true, "plunge": true, "crash": true, "fear": true,
		"fears": true, "miss": true, "misses": true, "decline": true, "weak": true,
		"down": true, "lower": true, "cut": true, "recession": true, "selloff": true,
	}
)

// HeadlinePolarity scores one headline in [-1, 1] by counting positive and
// negative words.
func HeadlinePolarity(title string) float64 {
	var pos, neg int
	for _, w := range strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		switch {
		case positiveWords[w]:
			pos++
		case negativeWords[w]:
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

// HeadlineSentiment averages headline polarity and scales it to 0-100.
// No headlines score 50.
func HeadlineSentiment(titles []string) float64 {
	if len(titles) == 0 {
		return neutralScore
	}
	var sum float64
	for _, t := range titles {
		sum += HeadlinePolarity(t)
	}
	avg := sum / float64(len(titles))
	return round1((avg + 1) * 50)
}

// MarketMood blends volatility calmness (40%) with headline tone (60%).
func MarketMood(calmness, headlines float64) float64 {
	return round1(calmness*0.4 + headlines*0.6)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
