package agent

import "time"

// Intent is a coarse classification of what an utterance asks for.
type Intent string

const (
	IntentCreate       Intent = "create"
	IntentSearch       Intent = "search"
	IntentAnalyze      Intent = "analyze"
	IntentCalculate    Intent = "calculate"
	IntentSchedule     Intent = "schedule"
	IntentTranslate    Intent = "translate"
	IntentSummarize    Intent = "summarize"
	IntentConversation Intent = "conversation"
)

// AllIntents returns the full intent vocabulary, the default last.
func AllIntents() []Intent {
	return []Intent{
		IntentCreate,
		IntentSearch,
		IntentAnalyze,
		IntentCalculate,
		IntentSchedule,
		IntentTranslate,
		IntentSummarize,
		IntentConversation,
	}
}

func (i Intent) String() string {
	return string(i)
}

// IsValid reports whether i belongs to the vocabulary.
func (i Intent) IsValid() bool {
	for _, v := range AllIntents() {
		if i == v {
			return true
		}
	}
	return false
}

// Sentiment is the polarity label assigned to an utterance.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Entity categories.
const (
	EntityNumbers = "numbers"
	EntityDates   = "dates"
	EntityTimes   = "times"
	EntityEmails  = "emails"
)

// Entities maps a category to the substrings matched for it, in order of
// appearance. Categories without matches are never present.
type Entities map[string][]string

// Perception is the result of analysing one input.
type Perception struct {
	RawText   string    `json:"raw_text"`
	Intent    Intent    `json:"intent"`
	Entities  Entities  `json:"entities"`
	Sentiment Sentiment `json:"sentiment"`
	Timestamp time.Time `json:"timestamp"`
}

// Plan is an ordered list of step names with a rough time estimate.
type Plan struct {
	Steps         []string `json:"steps" yaml:"steps"`
	EstimatedTime string   `json:"estimated_time" yaml:"estimated_time"`
}

// Reasoning is derived from a single Perception.
type Reasoning struct {
	Goal          string   `json:"goal"`
	Prerequisites []string `json:"prerequisites"`
	Plan          Plan     `json:"plan"`
	Confidence    float64  `json:"confidence"`
}

// StepStatus is the outcome of executing a plan step.
type StepStatus string

const StatusCompleted StepStatus = "completed"

// ExecutionResult records the execution of one plan step.
type ExecutionResult struct {
	StepName string     `json:"step_name"`
	Status   StepStatus `json:"status"`
	Output   string     `json:"output"`
}

// Result bundles one full perceive-reason-act turn.
type Result struct {
	InputText    string            `json:"input_text"`
	Perception   Perception        `json:"perception"`
	Reasoning    Reasoning         `json:"reasoning"`
	ResponseText string            `json:"response_text"`
	Steps        []ExecutionResult `json:"steps,omitempty"`
}
