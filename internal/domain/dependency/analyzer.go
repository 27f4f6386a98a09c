// Package dependency classifies a batch of tool calls as safe to run in
// parallel or requiring sequential execution (spec §4.H). It is grounded on
// internal/domain/agent/dag.go's rule-driven classification style,
// retargeted from DAG-node scheduling to the flat Parallel/Sequential
// decision spec.md describes; the six rules below are evaluated in the
// order spec.md lists them, first match wins.
package dependency

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/localagent/runtime/internal/domain/entity"
)

// Plan is the analyzer's verdict for one batch of calls.
type Plan struct {
	Parallel bool
	Reason   string // populated when Parallel is false
}

var referencePattern = regexp.MustCompile(`\$\{(\w+)\}|@(\w+)|result_of_(\w+)`)

var (
	pathLikePattern = regexp.MustCompile(`^(/|\./|\.\./|~/)[^\s]*$|^[A-Za-z]:[\\/][^\s]*$`)
	urlLikePattern  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
)

// ResourceAccess declares how a tool touches a resource, overriding the
// path/URL inference in rule 5.
type ResourceAccess struct {
	Resource  string
	Exclusive bool // write/exclusive access; conflicts with any other access to the same resource
}

// Config carries the analyzer's configurable inputs: explicit conflict
// pairs (rule 4) and per-tool resource declarations (rule 5).
type Config struct {
	// ConflictPairs lists tool name pairs that must never run concurrently
	// regardless of their arguments.
	ConflictPairs [][2]string
	// ResourceDeclarations overrides inferred resource access per tool
	// name; when absent, access is inferred from argument values.
	ResourceDeclarations map[string][]ResourceAccess
}

// Analyze classifies calls per spec §4.H's six ordered rules. It is pure:
// no I/O, no side effects.
func Analyze(calls []entity.ToolCall, cfg Config) Plan {
	if len(calls) < 2 {
		return Plan{Parallel: false, Reason: "single tool call"}
	}

	if name, ok := duplicateName(calls); ok {
		return Plan{Parallel: false, Reason: fmt.Sprintf("duplicate tool name %q in batch", name)}
	}

	if name, target, ok := crossReference(calls); ok {
		return Plan{Parallel: false, Reason: fmt.Sprintf("%q references the result of %q", name, target)}
	}

	if a, b, ok := explicitConflict(calls, cfg.ConflictPairs); ok {
		return Plan{Parallel: false, Reason: fmt.Sprintf("%q and %q are configured as conflicting", a, b)}
	}

	if a, b, resource, ok := resourceConflict(calls, cfg.ResourceDeclarations); ok {
		return Plan{Parallel: false, Reason: fmt.Sprintf("%q and %q both access %q and at least one access is exclusive", a, b, resource)}
	}

	return Plan{Parallel: true}
}

func duplicateName(calls []entity.ToolCall) (string, bool) {
	seen := make(map[string]bool, len(calls))
	for _, c := range calls {
		if seen[c.Name] {
			return c.Name, true
		}
		seen[c.Name] = true
	}
	return "", false
}

// crossReference implements rule 3: any argument string referencing another
// call in the batch (${tool}, @tool, result_of_tool) forces sequencing.
func crossReference(calls []entity.ToolCall) (caller, target string, found bool) {
	names := make(map[string]bool, len(calls))
	for _, c := range calls {
		names[c.Name] = true
	}
	for _, c := range calls {
		for _, v := range c.Arguments {
			s, ok := v.(string)
			if !ok {
				continue
			}
			for _, m := range referencePattern.FindAllStringSubmatch(s, -1) {
				ref := firstNonEmpty(m[1], m[2], m[3])
				if ref != "" && names[ref] {
					return c.Name, ref, true
				}
			}
		}
	}
	return "", "", false
}

func explicitConflict(calls []entity.ToolCall, pairs [][2]string) (a, b string, found bool) {
	present := make(map[string]bool, len(calls))
	for _, c := range calls {
		present[c.Name] = true
	}
	for _, pair := range pairs {
		if present[pair[0]] && present[pair[1]] {
			return pair[0], pair[1], true
		}
	}
	return "", "", false
}

// resourceConflict implements rule 5: infer (or look up configured)
// resource access per call, and flag a conflict when two calls touch the
// same resource and at least one is write/exclusive.
func resourceConflict(calls []entity.ToolCall, declarations map[string][]ResourceAccess) (a, b, resource string, found bool) {
	type access struct {
		callName  string
		resource  string
		exclusive bool
	}
	var accesses []access
	for _, c := range calls {
		if declared, ok := declarations[c.Name]; ok {
			for _, d := range declared {
				accesses = append(accesses, access{c.Name, d.Resource, d.Exclusive})
			}
			continue
		}
		for _, v := range c.Arguments {
			s, ok := v.(string)
			if !ok {
				continue
			}
			switch {
			case pathLikePattern.MatchString(s):
				accesses = append(accesses, access{c.Name, "file:" + s, true})
			case urlLikePattern.MatchString(s):
				accesses = append(accesses, access{c.Name, "net:" + s, false})
			}
		}
	}

	for i := 0; i < len(accesses); i++ {
		for j := i + 1; j < len(accesses); j++ {
			x, y := accesses[i], accesses[j]
			if x.callName == y.callName || x.resource != y.resource {
				continue
			}
			if x.exclusive || y.exclusive {
				return x.callName, y.callName, x.resource, true
			}
		}
	}
	return "", "", "", false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
