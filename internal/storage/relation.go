package storage

import "github.com/roach88/prevail/internal/schema"

// Rule is the delete action of one referencing field.
type Rule struct {
	Field  string
	Action schema.DeleteAction
}

// Relations records who points at an owner type: for each referencing
// type, in the order first observed, the rules of its foreign-key fields.
type Relations struct {
	order []string
	rules map[string][]Rule
}

// NewRelations returns an empty relation store.
func NewRelations() *Relations {
	return &Relations{rules: make(map[string][]Rule)}
}

// Add registers a rule. The first registration of (referencing, field)
// wins; Add reports whether anything changed.
func (r *Relations) Add(referencing, field string, action schema.DeleteAction) bool {
	rules, known := r.rules[referencing]
	for _, rule := range rules {
		if rule.Field == field {
			return false
		}
	}
	if !known {
		r.order = append(r.order, referencing)
	}
	r.rules[referencing] = append(rules, Rule{Field: field, Action: action})
	return true
}

// Drop removes a rule added by Add, and the referencing type once it has no rules.
func (r *Relations) Drop(referencing, field string) {
	rules := r.rules[referencing]
	for i, rule := range rules {
		if rule.Field != field {
			continue
		}
		rules = append(rules[:i:i], rules[i+1:]...)
		break
	}
	if len(rules) > 0 {
		r.rules[referencing] = rules
		return
	}
	delete(r.rules, referencing)
	for i, t := range r.order {
		if t == referencing {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

// Referencing returns the referencing types in registration order.
func (r *Relations) Referencing() []string {
	return append([]string(nil), r.order...)
}

// Rules returns the rules of one referencing type in registration order.
func (r *Relations) Rules(referencing string) []Rule {
	return append([]Rule(nil), r.rules[referencing]...)
}

// Empty reports whether no type references the owner.
func (r *Relations) Empty() bool { return len(r.order) == 0 }
