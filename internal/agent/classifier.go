package agent

import (
	"slices"
	"strings"
)

// Category labels of the default policy.
const (
	CategoryVehicle = "vehicle_task"
	CategoryQA      = "qa_task"
)

// Classifier decides which category an utterance belongs to.
// Classify must be deterministic for identical input.
type Classifier interface {
	Classify(text string, history []Message) string
	// Labels lists every label Classify can return.
	Labels() []string
}

// Category is a label with the phrases that select it.
type Category struct {
	Name     string   `mapstructure:"name"`
	Triggers []string `mapstructure:"triggers"`
}

// KeywordClassifier matches trigger phrases as case-insensitive substrings.
// Categories are tried in order and the first match wins; no match yields
// the fallback label.
type KeywordClassifier struct {
	categories []Category
	fallback   string
}

// NewKeywordClassifier creates a classifier over the ordered categories.
func NewKeywordClassifier(fallback string, categories ...Category) *KeywordClassifier {
	cats := make([]Category, 0, len(categories))
	for _, c := range categories {
		triggers := make([]string, 0, len(c.Triggers))
		for _, t := range c.Triggers {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				triggers = append(triggers, t)
			}
		}
		cats = append(cats, Category{Name: c.Name, Triggers: triggers})
	}
	return &KeywordClassifier{categories: cats, fallback: fallback}
}

// DefaultClassifier routes start and stop commands to the vehicle path and
// everything else to question answering.
func DefaultClassifier() *KeywordClassifier {
	return NewKeywordClassifier(CategoryQA, Category{
		Name:     CategoryVehicle,
		Triggers: []string{"启动", "关闭"},
	})
}

// Classify returns the first category with a trigger contained in text.
func (k *KeywordClassifier) Classify(text string, _ []Message) string {
	text = strings.ToLower(text)
	for _, c := range k.categories {
		for _, t := range c.Triggers {
			if strings.Contains(text, t) {
				return c.Name
			}
		}
	}
	return k.fallback
}

// Labels returns the category names and the fallback, without duplicates.
func (k *KeywordClassifier) Labels() []string {
	labels := make([]string, 0, len(k.categories)+1)
	for _, c := range k.categories {
		if !slices.Contains(labels, c.Name) {
			labels = append(labels, c.Name)
		}
	}
	if !slices.Contains(labels, k.fallback) {
		labels = append(labels, k.fallback)
	}
	return labels
}
