// Package agents resolves the persisted agent table into spawnable
// command lines (§6 "Agent option assembly") and maps agent ids to the
// classifier strategy tokens understood by internal/classify.
package agents

import (
	"fmt"
	"sort"

	"github.com/cacd-dev/cacd/internal/config"
	"github.com/cacd-dev/cacd/internal/sessionstate"
)

// Registry resolves agent definitions by id.
type Registry struct {
	byID map[string]config.AgentDef
	ids  []string
}

// NewRegistry builds a Registry from the persisted agents list.
func NewRegistry(defs []config.AgentDef) *Registry {
	r := &Registry{byID: make(map[string]config.AgentDef, len(defs))}
	for _, d := range defs {
		r.byID[d.ID] = d
		r.ids = append(r.ids, d.ID)
	}
	sort.Strings(r.ids)
	return r
}

// Get returns the definition for id.
func (r *Registry) Get(id string) (config.AgentDef, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// IDs returns all known agent ids in sorted order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// Strategy returns the agent's DetectionStrategy field as the classifier
// strategy token, or "unknown" when that field is empty.
func Strategy(d config.AgentDef) sessionstate.Strategy {
	if d.DetectionStrategy != "" {
		return sessionstate.Strategy(d.DetectionStrategy)
	}
	return sessionstate.StrategyUnknown
}

// OptionValues maps an option name to the value supplied by the caller
// (bool for "bool" options, string for "string" options).
type OptionValues map[string]any

// AssembleArgs builds the full argv (baseArgs + derived args) for one
// spawn, applying §6's option-assembly rules:
//   - boolean true  → emit `flag` if the option declares one
//   - string value  → emit `flag value`, or a bare positional `value`
//     when flag is empty
//   - choices       → constrain string values to the declared set
//   - same-group    → at most one option in a group may be true/non-empty
//
// Options are applied in declaration order; derived args are appended
// after baseArgs.
func AssembleArgs(d config.AgentDef, values OptionValues) ([]string, error) {
	args := append([]string(nil), d.BaseArgs...)

	groupActive := make(map[string]string)
	for _, opt := range d.Options {
		v, present := values[opt.Name]
		if !present {
			continue
		}

		switch opt.Type {
		case "bool":
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("option %q: expected bool value", opt.Name)
			}
			if !b {
				continue
			}
			if opt.Group != "" {
				if prior, ok := groupActive[opt.Group]; ok && prior != opt.Name {
					return nil, fmt.Errorf("option %q conflicts with %q in group %q", opt.Name, prior, opt.Group)
				}
				groupActive[opt.Group] = opt.Name
			}
			if opt.Flag != "" {
				args = append(args, opt.Flag)
			}
		case "string":
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("option %q: expected string value", opt.Name)
			}
			if s == "" {
				continue
			}
			if len(opt.Choices) > 0 && !contains(opt.Choices, s) {
				return nil, fmt.Errorf("option %q: %q is not one of %v", opt.Name, s, opt.Choices)
			}
			if opt.Group != "" {
				if prior, ok := groupActive[opt.Group]; ok && prior != opt.Name {
					return nil, fmt.Errorf("option %q conflicts with %q in group %q", opt.Name, prior, opt.Group)
				}
				groupActive[opt.Group] = opt.Name
			}
			if opt.Flag != "" {
				args = append(args, opt.Flag, s)
			} else {
				args = append(args, s)
			}
		default:
			return nil, fmt.Errorf("option %q: unknown type %q", opt.Name, opt.Type)
		}
	}
	return args, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
