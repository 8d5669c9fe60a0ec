package agent

import (
	"math"
	"strings"
)

const (
	baseConfidence      = 0.70
	entityBonus         = 0.15
	sentimentBonus      = 0.10
	lengthBonus         = 0.05
	lengthBonusMinWords = 5
)

// Reason derives goal, prerequisites, plan and confidence for a perception.
// The returned slices are copies; callers may modify them freely.
func Reason(p Perception, t *Tables) Reasoning {
	return Reasoning{
		Goal:          t.goal(p.Intent),
		Prerequisites: t.prerequisites(p.Intent),
		Plan:          t.plan(p.Intent),
		Confidence:    Confidence(p),
	}
}

// Confidence scores a perception: 0.70 base, +0.15 with any entity, +0.10 for
// non-neutral sentiment, +0.05 for more than five words. Capped at 1.0.
func Confidence(p Perception) float64 {
	c := baseConfidence
	if len(p.Entities) > 0 {
		c += entityBonus
	}
	if p.Sentiment != "" && p.Sentiment != SentimentNeutral {
		c += sentimentBonus
	}
	if len(strings.Fields(p.RawText)) > lengthBonusMinWords {
		c += lengthBonus
	}
	// Round away float noise so 0.70+0.15+0.05 reads as 0.9.
	c = math.Round(c*100) / 100
	return math.Min(c, 1.0)
}

func (t *Tables) goal(i Intent) string {
	if g, ok := t.Goals[i]; ok && g != "" {
		return g
	}
	return t.Defaults.Goal
}

func (t *Tables) prerequisites(i Intent) []string {
	if p, ok := t.Prerequisites[i]; ok && len(p) > 0 {
		return append([]string(nil), p...)
	}
	return append([]string(nil), t.Defaults.Prerequisites...)
}

func (t *Tables) plan(i Intent) Plan {
	p, ok := t.Plans[i]
	if !ok || len(p.Steps) == 0 {
		p = t.Defaults.Plan
	}
	return Plan{
		Steps:         append([]string(nil), p.Steps...),
		EstimatedTime: p.EstimatedTime,
	}
}
