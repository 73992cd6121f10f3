package bus

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dejobratic/orderbus/internal/events"
)

var (
	ErrInvalidRuleSet  = errors.New("invalid rule set")
	ErrUnknownTarget   = errors.New("unknown target")
	ErrDuplicateRule   = errors.New("duplicate rule name")
	ErrMissingRuleName = errors.New("rule name is required")
)

// Handler receives events dispatched by the Router.
type Handler interface {
	Handle(ctx context.Context, event events.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event events.Event) error

func (f HandlerFunc) Handle(ctx context.Context, event events.Event) error {
	return f(ctx, event)
}

// Rule binds an event pattern to a target. Empty SourcePrefix matches every
// source; empty DetailTypes matches every detail type.
type Rule struct {
	Name         string
	SourcePrefix string
	DetailTypes  []string
	Target       string
}

// Matches reports whether every non-empty predicate of the rule holds for event.
func (r Rule) Matches(event events.Event) bool {
	if !strings.HasPrefix(event.Source, r.SourcePrefix) {
		return false
	}
	if len(r.DetailTypes) > 0 && !slices.Contains(r.DetailTypes, event.DetailType) {
		return false
	}
	return true
}

type boundRule struct {
	Rule
	handler Handler
}

// RuleSet is the immutable routing table consulted on every publish.
type RuleSet struct {
	rules []boundRule
}

// NewRuleSet resolves every rule target against handlers. The returned set
// holds private copies and is safe for concurrent reads.
func NewRuleSet(rules []Rule, handlers map[string]Handler) (*RuleSet, error) {
	seen := make(map[string]struct{}, len(rules))
	bound := make([]boundRule, 0, len(rules))

	for _, r := range rules {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRuleSet, ErrMissingRuleName)
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("%w: %w: %s", ErrInvalidRuleSet, ErrDuplicateRule, r.Name)
		}
		seen[r.Name] = struct{}{}

		h, ok := handlers[r.Target]
		if !ok || h == nil {
			return nil, fmt.Errorf("%w: %w %q in rule %s", ErrInvalidRuleSet, ErrUnknownTarget, r.Target, r.Name)
		}

		r.DetailTypes = slices.Clone(r.DetailTypes)
		bound = append(bound, boundRule{Rule: r, handler: h})
	}

	return &RuleSet{rules: bound}, nil
}

// Rules returns a copy of the configured rules.
func (s *RuleSet) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	for i, br := range s.rules {
		r := br.Rule
		r.DetailTypes = slices.Clone(r.DetailTypes)
		out[i] = r
	}
	return out
}

func (s *RuleSet) match(event events.Event) []boundRule {
	var matched []boundRule
	for _, r := range s.rules {
		if r.Matches(event) {
			matched = append(matched, r)
		}
	}
	return matched
}
