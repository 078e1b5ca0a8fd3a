// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"encoding/json"
	"slices"
)

// Push rule kinds, in evaluation order.
const (
	PushKindOverride  = "override"
	PushKindContent   = "content"
	PushKindRoom      = "room"
	PushKindSender    = "sender"
	PushKindUnderride = "underride"
)

// Ruleset is the user's global push ruleset, as carried in the
// m.push_rules account data event.
type Ruleset struct {
	Content   []PushRule `json:"content,omitempty"`
	Override  []PushRule `json:"override,omitempty"`
	Room      []PushRule `json:"room,omitempty"`
	Sender    []PushRule `json:"sender,omitempty"`
	Underride []PushRule `json:"underride,omitempty"`
}

// PushRule is one rule. Actions are kept raw: they are either strings
// ("notify") or tweak objects, and the client only passes them through.
type PushRule struct {
	RuleID     string            `json:"rule_id"`
	Default    bool              `json:"default"`
	Enabled    bool              `json:"enabled"`
	Pattern    string            `json:"pattern,omitempty"`
	Conditions []PushCondition   `json:"conditions,omitempty"`
	Actions    []json.RawMessage `json:"actions"`
}

// PushCondition is one condition of an override or underride rule.
type PushCondition struct {
	Kind    string `json:"kind"`
	Key     string `json:"key,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	Is      string `json:"is,omitempty"`
}

// Rules returns the rules of the given kind, or nil for an unknown kind.
func (r *Ruleset) Rules(kind string) []PushRule {
	switch kind {
	case PushKindOverride:
		return r.Override
	case PushKindContent:
		return r.Content
	case PushKindRoom:
		return r.Room
	case PushKindSender:
		return r.Sender
	case PushKindUnderride:
		return r.Underride
	}
	return nil
}

// Find returns the rule with ruleID within kind.
func (r *Ruleset) Find(kind, ruleID string) (PushRule, bool) {
	for _, rule := range r.Rules(kind) {
		if rule.RuleID == ruleID {
			return rule, true
		}
	}
	return PushRule{}, false
}

// Clone returns a deep copy.
func (r *Ruleset) Clone() *Ruleset {
	if r == nil {
		return nil
	}
	return &Ruleset{
		Content:   cloneRules(r.Content),
		Override:  cloneRules(r.Override),
		Room:      cloneRules(r.Room),
		Sender:    cloneRules(r.Sender),
		Underride: cloneRules(r.Underride),
	}
}

func cloneRules(rules []PushRule) []PushRule {
	if rules == nil {
		return nil
	}
	cloned := make([]PushRule, len(rules))
	for i, rule := range rules {
		cloned[i] = rule
		cloned[i].Conditions = slices.Clone(rule.Conditions)
		if rule.Actions != nil {
			cloned[i].Actions = make([]json.RawMessage, len(rule.Actions))
			for j, action := range rule.Actions {
				cloned[i].Actions[j] = slices.Clone(action)
			}
		}
	}
	return cloned
}
