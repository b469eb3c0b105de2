package workflow

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
)

const (
	defaultClassificationThreshold = 0.5
	fallbackCategory               = "general"
	fallbackConfidence             = 0.5
	fallbackRule                   = "default"
)

// ContentClassifier scores free text against pattern rules.
type ContentClassifier struct {
	threshold float64

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

func NewContentClassifier() *ContentClassifier {
	return &ContentClassifier{threshold: defaultClassificationThreshold, patterns: make(map[string]*regexp.Regexp)}
}

// WithDefaultThreshold sets the threshold used by rules that declare none.
func (c *ContentClassifier) WithDefaultThreshold(threshold float64) *ContentClassifier {
	if threshold > 0 {
		c.threshold = threshold
	}
	return c
}

// Classify ranks the rules whose confidence exceeds their threshold. Confidence
// is pattern matches divided by word count, capped at 1.
func (c *ContentClassifier) Classify(text string, rules []ClassificationRule) Classification {
	words := len(strings.Fields(text))
	scored := make([]RuleScore, 0, len(rules))
	if words > 0 {
		for _, rule := range rules {
			if strings.TrimSpace(rule.Pattern) == "" {
				continue
			}
			matches := len(c.pattern(rule.Pattern).FindAllStringIndex(text, -1))
			confidence := math.Min(float64(matches)/float64(words), 1.0)
			if confidence <= c.thresholdFor(rule) {
				continue
			}
			scored = append(scored, RuleScore{
				Rule:       ruleName(rule),
				Category:   rule.Category,
				Confidence: confidence,
				Matches:    matches,
			})
		}
	}
	if len(scored) == 0 {
		return Classification{
			Category:   fallbackCategory,
			Confidence: fallbackConfidence,
			Rule:       fallbackRule,
			Tags:       []string{},
			Details:    []RuleScore{{Rule: fallbackRule, Category: fallbackCategory, Confidence: fallbackConfidence}},
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Confidence > scored[j].Confidence
	})
	tags := make([]string, len(scored))
	for i, s := range scored {
		tags[i] = s.Category
	}
	return Classification{
		Category:   scored[0].Category,
		Confidence: scored[0].Confidence,
		Rule:       scored[0].Rule,
		Tags:       tags,
		Details:    scored,
	}
}

func (c *ContentClassifier) thresholdFor(rule ClassificationRule) float64 {
	if rule.Threshold != nil {
		return *rule.Threshold
	}
	return c.threshold
}

// pattern compiles case-insensitively; an invalid expression matches literally.
func (c *ContentClassifier) pattern(p string) *regexp.Regexp {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.patterns[p]; ok {
		return re
	}
	re, err := regexp.Compile("(?i)" + p)
	if err != nil {
		re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(p))
	}
	if len(c.patterns) > 1024 {
		c.patterns = make(map[string]*regexp.Regexp)
	}
	c.patterns[p] = re
	return re
}

func ruleName(rule ClassificationRule) string {
	if rule.Name != "" {
		return rule.Name
	}
	if rule.Category != "" {
		return rule.Category
	}
	return rule.Pattern
}
