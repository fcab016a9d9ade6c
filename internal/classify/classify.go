package classify

import "github.com/fennwick/cull/internal/inventory"

// Classified pairs a scanned record with the tier it landed in and the rule
// that put it there.
type Classified struct {
	Record inventory.Record
	Tier   Tier
	Rule   string
}

// Classify assigns exactly one tier to a record. It is pure and total: every
// record classifies, ambiguous attributes fall through to TierExcluded, and
// no error is ever raised.
func Classify(rec inventory.Record, rules RuleSet) Tier {
	tier, _ := classifyWithRule(rec, rules)
	return tier
}

func classifyWithRule(rec inventory.Record, rules RuleSet) (Tier, string) {
	for _, rule := range rules.rules {
		if rule.Match(rec) {
			return rule.Tier, rule.Name
		}
	}
	return TierExcluded, ""
}

// Partition classifies every record in a snapshot, preserving input order.
// Excluded records are dropped from the result entirely; they are never
// surfaced as killable.
func Partition(records []inventory.Record, rules RuleSet) []Classified {
	out := make([]Classified, 0, len(records))
	for _, rec := range records {
		tier, rule := classifyWithRule(rec, rules)
		if tier == TierExcluded {
			continue
		}
		out = append(out, Classified{Record: rec, Tier: tier, Rule: rule})
	}
	return out
}

// Reviewable reports whether the tier may be put in front of the operator at
// all. Untouchable records appear in the scan report but are never offered.
func (c Classified) Reviewable() bool {
	return c.Tier == TierProtected || c.Tier == TierSafeCandidate
}
