package service

import (
	"strings"
	"sync"

	"wagateway/internal/models"
)

// DefaultAutoResponseRules are used when the configuration lists none.
func DefaultAutoResponseRules() []models.AutoResponseRule {
	return []models.AutoResponseRule{
		{
			Keywords: []string{"hello", "good morning", "مرحبا"},
			Reply:    "Hello! Thanks for reaching out. A member of our team will get back to you shortly.",
		},
		{
			Keywords: []string{"help", "support"},
			Reply:    "We're here to help. Reply with a short description of your question and we'll follow up.",
		},
		{
			Keywords: []string{"job", "apply", "vacancy"},
			Reply:    "Thanks for your interest! You can browse open positions and apply from the link in our profile.",
		},
	}
}

// AutoResponder matches inbound text against keyword rules. Matching is a
// case-insensitive substring search and the first matching rule wins.
type AutoResponder struct {
	mu       sync.RWMutex
	disabled bool
	rules    []models.AutoResponseRule
}

func NewAutoResponder(cfg models.AutoResponseConfig) *AutoResponder {
	a := &AutoResponder{}
	a.Update(cfg)
	return a
}

// Update swaps the rule set, e.g. after a configuration reload.
func (a *AutoResponder) Update(cfg models.AutoResponseConfig) {
	rules := cfg.Rules
	if len(rules) == 0 {
		rules = DefaultAutoResponseRules()
	}

	normalized := make([]models.AutoResponseRule, 0, len(rules))
	for _, rule := range rules {
		keywords := make([]string, 0, len(rule.Keywords))
		for _, kw := range rule.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if len(keywords) == 0 || strings.TrimSpace(rule.Reply) == "" {
			continue
		}
		normalized = append(normalized, models.AutoResponseRule{Keywords: keywords, Reply: rule.Reply})
	}

	a.mu.Lock()
	a.disabled = cfg.Disabled
	a.rules = normalized
	a.mu.Unlock()
}

// Match returns the reply for text, if any rule applies.
func (a *AutoResponder) Match(text string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.disabled {
		return "", false
	}
	lowered := strings.ToLower(text)
	for _, rule := range a.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lowered, kw) {
				return rule.Reply, true
			}
		}
	}
	return "", false
}
