package classify

import (
	"strings"

	"github.com/fennwick/cull/internal/inventory"
)

// Tier controls whether a process may ever be offered for termination.
type Tier string

const (
	// TierUntouchable marks processes that are never offered, not even
	// under a force flag.
	TierUntouchable Tier = "untouchable"
	// TierProtected marks processes offered only behind an explicit
	// per-process override acknowledgment.
	TierProtected Tier = "protected"
	// TierSafeCandidate marks processes eligible for ordinary review.
	TierSafeCandidate Tier = "candidate"
	// TierExcluded marks processes that matched nothing and fell below the
	// candidacy heuristics; they are never shown as killable.
	TierExcluded Tier = "excluded"
)

// Rule is one predicate over a process record, bound to the tier it assigns.
type Rule struct {
	Tier  Tier
	Name  string
	Match func(inventory.Record) bool
}

// RuleSet is an ordered list of rules. Evaluation order is fixed at
// construction: untouchable rules first, then protected, then candidate.
// The first matching rule wins, so an untouchable match always beats a
// protected or candidate match for the same record.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet orders the supplied rules by tier precedence. Relative order
// within a tier is preserved.
func NewRuleSet(rules []Rule) RuleSet {
	ordered := make([]Rule, 0, len(rules))
	for _, tier := range []Tier{TierUntouchable, TierProtected, TierSafeCandidate} {
		for _, rule := range rules {
			if rule.Tier == tier {
				ordered = append(ordered, rule)
			}
		}
	}
	return RuleSet{rules: ordered}
}

// reservedPorts are bound to system services that must never be offered for
// termination: remote access, directory, file sharing, printing and the
// host's own screen-sharing control port. Not configurable.
var reservedPorts = []int{22, 389, 445, 548, 631, 5900}

// essentialDaemons are process names whose loss takes the session or the
// machine down with it.
var essentialDaemons = []string{
	"launchd",
	"systemd",
	"init",
	"kernel_task",
	"kthreadd",
	"WindowServer",
	"loginwindow",
	"Xorg",
	"Xwayland",
	"gnome-shell",
	"plasmashell",
	"sshd",
	"systemd-logind",
	"dbus-daemon",
}

// ideHelpers and databaseEngines and containerDaemons populate the protected
// tier: killable in principle, but only behind an explicit override.
var ideHelpers = []string{
	"code helper",
	"code-helper",
	"goland",
	"idea",
	"webstorm",
	"pycharm",
	"gopls",
	"rust-analyzer",
	"typescript-language-server",
	"copilot",
}

var databaseEngines = []string{
	"postgres",
	"mysqld",
	"mariadbd",
	"mongod",
	"redis-server",
	"clickhouse",
	"etcd",
}

var containerDaemons = []string{
	"dockerd",
	"containerd",
	"containerd-shim",
	"podman",
	"colima",
	"limactl",
}

// devToolPatterns identify development tooling that qualifies for candidacy
// when bound to a port in the configured dev range.
var devToolPatterns = []string{
	"node",
	"next-server",
	"vite",
	"webpack",
	"esbuild",
	"turbopack",
	"parcel",
	"nodemon",
	"watchman",
	"deno",
	"bun",
	"flask",
	"rails",
	"php",
	"gradle",
}

// Options parameterize the default rule set. All values are explicit inputs
// so tests can classify against synthetic rule sets.
type Options struct {
	// MemoryFloor is the resident-size threshold above which an otherwise
	// unmatched process becomes a candidate.
	MemoryFloor uint64
	// PortMin and PortMax bound the dev-server port range for candidacy.
	PortMin int
	PortMax int
	// ShieldedPIDs holds the invoking process, its ancestors and any other
	// pid that must classify untouchable regardless of attributes.
	ShieldedPIDs map[int32]struct{}
	// ContainerPIDs holds init pids of running containers; they classify
	// protected so containers are never killed out from under their daemon.
	ContainerPIDs map[int32]struct{}
	// ProtectedPatterns are user-supplied name patterns merged into the
	// protected tier. They never override untouchable rules.
	ProtectedPatterns []string
}

// DefaultRules builds the standard rule set: hard-coded untouchable rules,
// protected rules (built-in plus user patterns), then the candidacy
// heuristics.
func DefaultRules(opts Options) RuleSet {
	rules := []Rule{
		{Tier: TierUntouchable, Name: "kernel-init", Match: func(r inventory.Record) bool {
			return r.PID <= 1
		}},
		{Tier: TierUntouchable, Name: "self-ancestry", Match: func(r inventory.Record) bool {
			_, ok := opts.ShieldedPIDs[r.PID]
			return ok
		}},
		{Tier: TierUntouchable, Name: "essential-daemon", Match: exactNameMatcher(essentialDaemons)},
		{Tier: TierUntouchable, Name: "reserved-port", Match: func(r inventory.Record) bool {
			for _, port := range reservedPorts {
				if r.HasPort(port) {
					return true
				}
			}
			return false
		}},
		{Tier: TierProtected, Name: "ide-helper", Match: nameMatcher(ideHelpers)},
		{Tier: TierProtected, Name: "database", Match: nameMatcher(databaseEngines)},
		{Tier: TierProtected, Name: "container-daemon", Match: nameMatcher(containerDaemons)},
		{Tier: TierProtected, Name: "container-init", Match: func(r inventory.Record) bool {
			_, ok := opts.ContainerPIDs[r.PID]
			return ok
		}},
	}

	for _, pattern := range opts.ProtectedPatterns {
		pattern := strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		rules = append(rules, Rule{
			Tier: TierProtected,
			Name: "user:" + pattern,
			Match: func(r inventory.Record) bool {
				return strings.Contains(strings.ToLower(r.Name), pattern)
			},
		})
	}

	rules = append(rules,
		Rule{Tier: TierSafeCandidate, Name: "high-memory", Match: func(r inventory.Record) bool {
			return opts.MemoryFloor > 0 && r.MemoryBytes >= opts.MemoryFloor
		}},
		Rule{Tier: TierSafeCandidate, Name: "dev-server", Match: func(r inventory.Record) bool {
			if !nameMatcher(devToolPatterns)(r) {
				return false
			}
			return r.HasPortIn(opts.PortMin, opts.PortMax)
		}},
	)

	return NewRuleSet(rules)
}

func nameMatcher(patterns []string) func(inventory.Record) bool {
	return func(r inventory.Record) bool {
		name := strings.ToLower(r.Name)
		for _, pattern := range patterns {
			if strings.Contains(name, strings.ToLower(pattern)) {
				return true
			}
		}
		return false
	}
}

// exactNameMatcher matches whole names only; substring matching is too loose
// for the untouchable tier, where a false positive hides a killable process
// but a false negative endangers the session.
func exactNameMatcher(names []string) func(inventory.Record) bool {
	return func(r inventory.Record) bool {
		name := strings.ToLower(r.Name)
		for _, candidate := range names {
			if name == strings.ToLower(candidate) {
				return true
			}
		}
		return false
	}
}
