package agent

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// IntentRule pairs an intent with the keywords that select it.
type IntentRule struct {
	Intent   Intent   `yaml:"intent" json:"intent"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Defaults are used for intents without a dedicated table entry.
type Defaults struct {
	Goal          string   `yaml:"goal" json:"goal"`
	Prerequisites []string `yaml:"prerequisites" json:"prerequisites"`
	Plan          Plan     `yaml:"plan" json:"plan"`
}

// Lexicon holds the sentiment word lists.
type Lexicon struct {
	Positive []string `yaml:"positive" json:"positive"`
	Negative []string `yaml:"negative" json:"negative"`
}

// Tables is the editable data behind classification and planning. Intent
// rules are evaluated in order; the first rule with a matching keyword wins.
type Tables struct {
	Intents       []IntentRule        `yaml:"intents" json:"intents"`
	Goals         map[Intent]string   `yaml:"goals" json:"goals"`
	Prerequisites map[Intent][]string `yaml:"prerequisites" json:"prerequisites"`
	Plans         map[Intent]Plan     `yaml:"plans" json:"plans"`
	Defaults      Defaults            `yaml:"defaults" json:"defaults"`
	Lexicon       Lexicon             `yaml:"lexicon" json:"lexicon"`
}

// DefaultTables returns the built-in tables.
func DefaultTables() *Tables {
	return &Tables{
		Intents: []IntentRule{
			{Intent: IntentCreate, Keywords: []string{"create", "make", "generate", "write"}},
			{Intent: IntentSearch, Keywords: []string{"search", "find", "look for", "show me"}},
			{Intent: IntentAnalyze, Keywords: []string{"analyze", "explain", "understand", "what is"}},
			{Intent: IntentCalculate, Keywords: []string{"calculate", "compute", "how much", "sum"}},
			{Intent: IntentSchedule, Keywords: []string{"schedule", "plan", "set reminder", "meeting"}},
			{Intent: IntentTranslate, Keywords: []string{"translate", "say in", "convert to"}},
			{Intent: IntentSummarize, Keywords: []string{"summarize", "brief", "tldr", "overview"}},
		},
		Goals: map[Intent]string{
			IntentCreate:    "Generate new content",
			IntentSearch:    "Retrieve information",
			IntentAnalyze:   "Understand and explain",
			IntentCalculate: "Perform computation",
			IntentSchedule:  "Organize time-based tasks",
			IntentTranslate: "Convert between languages",
			IntentSummarize: "Condense information",
		},
		Prerequisites: map[Intent][]string{
			IntentSearch:    {"internet access", "search tool"},
			IntentCalculate: {"math processor"},
			IntentTranslate: {"translation model"},
			IntentSchedule:  {"calendar access"},
		},
		Plans: map[Intent]Plan{
			IntentCreate: {
				Steps:         []string{"understand_requirements", "generate_content", "validate_output"},
				EstimatedTime: "10s",
			},
			IntentAnalyze: {
				Steps:         []string{"parse_input", "analyze_components", "synthesize_explanation"},
				EstimatedTime: "5s",
			},
			IntentCalculate: {
				Steps:         []string{"extract_numbers", "determine_operation", "compute_result"},
				EstimatedTime: "2s",
			},
		},
		Defaults: Defaults{
			Goal:          "Assist user",
			Prerequisites: []string{"language understanding"},
			Plan: Plan{
				Steps:         []string{"understand_query", "process_information", "formulate_response"},
				EstimatedTime: "3s",
			},
		},
		Lexicon: Lexicon{
			Positive: []string{"good", "great", "excellent", "happy", "love", "thank"},
			Negative: []string{"bad", "terrible", "sad", "hate", "angry", "problem"},
		},
	}
}

// LoadTables reads a YAML tables file. Top-level sections and map entries
// present in the file replace the built-in ones; anything omitted keeps its
// default. A plan entry without estimated_time takes the built-in estimate
// for that intent, or the default plan's.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tables file: %w", err)
	}
	return ParseTables(data)
}

// ParseTables decodes YAML over the built-in tables and validates the result.
func ParseTables(data []byte) (*Tables, error) {
	t := DefaultTables()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(t); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parsing tables: %w", err)
	}
	t.normalize()
	t.fillEstimates(DefaultTables())
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// WriteYAML encodes the tables in the same format LoadTables reads.
func (t *Tables) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("encoding tables: %w", err)
	}
	return enc.Close()
}

// Validate checks that the tables can drive the pipeline.
func (t *Tables) Validate() error {
	seen := make(map[Intent]bool)
	for i, r := range t.Intents {
		if !r.Intent.IsValid() || r.Intent == IntentConversation {
			return fmt.Errorf("intents[%d]: unknown intent %q", i, r.Intent)
		}
		if seen[r.Intent] {
			return fmt.Errorf("intents[%d]: duplicate intent %q", i, r.Intent)
		}
		seen[r.Intent] = true
		if len(r.Keywords) == 0 {
			return fmt.Errorf("intents[%d]: intent %q has no keywords", i, r.Intent)
		}
		for _, kw := range r.Keywords {
			if kw == "" {
				return fmt.Errorf("intents[%d]: intent %q has an empty keyword", i, r.Intent)
			}
		}
	}
	for intent := range t.Goals {
		if !intent.IsValid() {
			return fmt.Errorf("goals: unknown intent %q", intent)
		}
	}
	for intent := range t.Prerequisites {
		if !intent.IsValid() {
			return fmt.Errorf("prerequisites: unknown intent %q", intent)
		}
	}
	for intent, p := range t.Plans {
		if !intent.IsValid() {
			return fmt.Errorf("plans: unknown intent %q", intent)
		}
		if len(p.Steps) == 0 {
			return fmt.Errorf("plans[%s]: no steps", intent)
		}
		if p.EstimatedTime == "" {
			return fmt.Errorf("plans[%s]: no estimated_time", intent)
		}
	}
	if t.Defaults.Goal == "" {
		return fmt.Errorf("defaults.goal is empty")
	}
	if len(t.Defaults.Plan.Steps) == 0 {
		return fmt.Errorf("defaults.plan has no steps")
	}
	return nil
}

// fillEstimates copies missing plan estimates from builtin.
func (t *Tables) fillEstimates(builtin *Tables) {
	if t.Defaults.Plan.EstimatedTime == "" {
		t.Defaults.Plan.EstimatedTime = builtin.Defaults.Plan.EstimatedTime
	}
	for intent, p := range t.Plans {
		if p.EstimatedTime != "" {
			continue
		}
		if b, ok := builtin.Plans[intent]; ok {
			p.EstimatedTime = b.EstimatedTime
		} else {
			p.EstimatedTime = t.Defaults.Plan.EstimatedTime
		}
		t.Plans[intent] = p
	}
}

// normalize lower-cases every keyword; matching runs on lower-cased text.
func (t *Tables) normalize() {
	for i := range t.Intents {
		for j, kw := range t.Intents[i].Keywords {
			t.Intents[i].Keywords[j] = strings.ToLower(kw)
		}
	}
	for i, w := range t.Lexicon.Positive {
		t.Lexicon.Positive[i] = strings.ToLower(w)
	}
	for i, w := range t.Lexicon.Negative {
		t.Lexicon.Negative[i] = strings.ToLower(w)
	}
}
