package scan

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/cel-go/cel"
)

// Rule is one heuristic: a CEL expression over the target facts. A rule
// that evaluates to true produces a Finding.
type Rule struct {
	Name     string `yaml:"name"`
	Severity string `yaml:"severity"` // "low", "medium", "high"
	Message  string `yaml:"message"`
	Expr     string `yaml:"expr"`
}

// Finding is a triggered heuristic.
type Finding struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// DefaultRules are the built-in phishing/abuse heuristics.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "punycode-host",
			Severity: "high",
			Message:  "Hostname uses punycode, a common homograph-attack vector",
			Expr:     `target.host.contains("xn--")`,
		},
		{
			Name:     "userinfo-in-url",
			Severity: "high",
			Message:  "URL embeds credentials before the hostname",
			Expr:     `target.has_userinfo`,
		},
		{
			Name:     "ip-literal-host",
			Severity: "medium",
			Message:  "URL addresses a raw IP instead of a domain",
			Expr:     `target.has_ip_host`,
		},
		{
			Name:     "insecure-scheme",
			Severity: "low",
			Message:  "URL uses plain http",
			Expr:     `target.type == "url" && target.scheme == "http"`,
		},
		{
			Name:     "excessive-subdomains",
			Severity: "medium",
			Message:  "Hostname nests an unusual number of subdomains",
			Expr:     `target.subdomain_count > 4`,
		},
		{
			Name:     "oversized-url",
			Severity: "low",
			Message:  "URL is unusually long",
			Expr:     `target.type == "url" && target.length > 200`,
		},
	}
}

type compiledRule struct {
	rule    Rule
	program cel.Program
}

// Heuristics evaluates a rule set against target facts. Rules compile once
// at construction.
type Heuristics struct {
	rules []compiledRule
}

func NewHeuristics(rules []Rule) (*Heuristics, error) {
	env, err := cel.NewEnv(
		cel.Variable("target", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, err
	}

	h := &Heuristics{}
	for _, rule := range rules {
		ast, issues := env.Compile(rule.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, issues.Err())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		h.rules = append(h.rules, compiledRule{rule: rule, program: program})
	}
	return h, nil
}

// Evaluate runs every rule over the facts derived from (targetType, target),
// which must already have passed syntax validation.
func (h *Heuristics) Evaluate(targetType, target string) ([]Finding, error) {
	facts := targetFacts(targetType, target)

	var findings []Finding
	for _, cr := range h.rules {
		out, _, err := cr.program.Eval(map[string]any{"target": facts})
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", cr.rule.Name, err)
		}
		if triggered, ok := out.Value().(bool); ok && triggered {
			findings = append(findings, Finding{
				Rule:     cr.rule.Name,
				Severity: cr.rule.Severity,
				Message:  cr.rule.Message,
			})
		}
	}
	return findings, nil
}

// targetFacts flattens the target into the map the CEL rules see.
func targetFacts(targetType, target string) map[string]any {
	host := target
	scheme := ""
	hasUserinfo := false

	if targetType == TypeURL {
		if u, err := url.Parse(target); err == nil {
			host = u.Hostname()
			scheme = u.Scheme
			hasUserinfo = u.User != nil
		}
	}

	subdomains := 0
	if targetType != TypeIP && !ValidIP(host) {
		if parts := strings.Split(host, "."); len(parts) > 2 {
			subdomains = len(parts) - 2
		}
	}

	return map[string]any{
		"type":            targetType,
		"raw":             target,
		"host":            strings.ToLower(host),
		"scheme":          scheme,
		"length":          len(target),
		"has_userinfo":    hasUserinfo,
		"has_ip_host":     ValidIP(host),
		"subdomain_count": subdomains,
	}
}
