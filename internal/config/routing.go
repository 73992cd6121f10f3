package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dejobratic/orderbus/internal/bus"
	"github.com/dejobratic/orderbus/internal/retailers"
)

// Built-in rule targets. Retailer targets are named by retailers.Retailer.Target.
const (
	TargetEventStore = "eventstore"
	TargetForwarder  = "nats"
)

var ErrUnknownRoutingKey = errors.New("unknown key in routing file")

// RuleConfig is one [[rule]] table of the routing file.
type RuleConfig struct {
	Name         string   `toml:"name"`
	SourcePrefix string   `toml:"source_prefix,omitempty"`
	DetailTypes  []string `toml:"detail_types,omitempty"`
	Target       string   `toml:"target"`
}

// Routing is the static routing configuration: which retailers exist and
// which rule sends what where. It is loaded once at startup.
type Routing struct {
	Retailers retailers.Catalog `toml:"retailer"`
	Rules     []RuleConfig      `toml:"rule"`
}

// LoadRouting reads the routing file at path. An empty path, or a file that
// leaves a section out, falls back to the built-in defaults for that section.
func LoadRouting(path string, forward bool) (*Routing, error) {
	routing := &Routing{}

	if path != "" {
		md, err := toml.DecodeFile(path, routing)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("routing file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("decode routing file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			sort.Strings(keys)
			return nil, fmt.Errorf("%w: %s", ErrUnknownRoutingKey, strings.Join(keys, ", "))
		}
	}

	if len(routing.Retailers) == 0 {
		routing.Retailers = retailers.DefaultCatalog()
	}
	if err := routing.Retailers.Validate(); err != nil {
		return nil, err
	}

	if len(routing.Rules) == 0 {
		routing.Rules = DefaultRules(routing.Retailers, forward)
	}

	return routing, nil
}

// DefaultRules stores every event, sends each retailer its own detail type
// whatever the source and, when forward is set, mirrors everything to NATS.
func DefaultRules(catalog retailers.Catalog, forward bool) []RuleConfig {
	rules := []RuleConfig{{Name: "store-all-events", Target: TargetEventStore}}

	for _, r := range catalog {
		rules = append(rules, RuleConfig{
			Name:        r.StoreID + "-orders",
			DetailTypes: []string{r.DetailType},
			Target:      r.Target(),
		})
	}

	if forward {
		rules = append(rules, RuleConfig{Name: "forward-all-events", Target: TargetForwarder})
	}

	return rules
}

func (r *Routing) BusRules() []bus.Rule {
	rules := make([]bus.Rule, 0, len(r.Rules))
	for _, rc := range r.Rules {
		rules = append(rules, bus.Rule{
			Name:         rc.Name,
			SourcePrefix: rc.SourcePrefix,
			DetailTypes:  append([]string(nil), rc.DetailTypes...),
			Target:       rc.Target,
		})
	}
	return rules
}

// Encode writes the effective routing back out as TOML.
func (r *Routing) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(r)
}
