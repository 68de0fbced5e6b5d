package rules

import (
	"errors"
	"sort"
	"sync"

	"llm-router/internal/apperr"
)

var ErrRuleExists = errors.New("rule already registered")

// Registry holds rules by name. Registered rules are never mutated.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]Rule)}
}

// Register validates and stores a rule. Names are unique; re-registering returns ErrRuleExists.
func (r *Registry) Register(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[rule.Name]; exists {
		return ErrRuleExists
	}
	r.rules[rule.Name] = rule
	return nil
}

// Resolve returns the rule registered under name or a rule_not_found error.
func (r *Registry) Resolve(name string) (Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[name]
	if !ok {
		return Rule{}, apperr.RuleNotFound(name)
	}
	return rule, nil
}

func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[name]; !ok {
		return apperr.RuleNotFound(name)
	}
	delete(r.rules, name)
	return nil
}

// List returns all rules sorted by name.
func (r *Registry) List() []Rule {
	r.mu.RLock()
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
