package agent

import (
	"regexp"
	"strings"
)

var (
	numberPattern = regexp.MustCompile(`\d+`)
	datePattern   = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`)
	timePattern   = regexp.MustCompile(`\b\d{1,2}:\d{2}\s*(?:am|pm)?\b`)
	emailPattern  = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)
)

// ExtractEntities pattern-matches numbers, dates, times and email addresses.
// Times are matched against the lower-cased text, so "5:00PM" yields "5:00pm".
func ExtractEntities(text string) Entities {
	found := Entities{
		EntityNumbers: numberPattern.FindAllString(text, -1),
		EntityDates:   datePattern.FindAllString(text, -1),
		EntityTimes:   timePattern.FindAllString(strings.ToLower(text), -1),
		EntityEmails:  emailPattern.FindAllString(text, -1),
	}
	for k, v := range found {
		if len(v) == 0 {
			delete(found, k)
		}
	}
	return found
}

// AnalyzeSentiment labels text using the given lexicon. Each word counts once
// when it appears anywhere in the lower-cased text ("thankful" contains
// "thank"). Equal counts are neutral.
func AnalyzeSentiment(text string, lex Lexicon) Sentiment {
	lower := strings.ToLower(text)
	pos := countPresent(lower, lex.Positive)
	neg := countPresent(lower, lex.Negative)
	switch {
	case pos > neg:
		return SentimentPositive
	case neg > pos:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

func countPresent(lower string, words []string) int {
	n := 0
	for _, w := range words {
		if w != "" && strings.Contains(lower, w) {
			n++
		}
	}
	return n
}

// ClassifyIntent returns the intent of the first rule with a keyword found in
// the lower-cased text, or IntentConversation when nothing matches.
func ClassifyIntent(text string, rules []IntentRule) Intent {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(lower, kw) {
				return r.Intent
			}
		}
	}
	return IntentConversation
}
