package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/policy"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// deniedBuiltins are engine builtins policy content may not reference:
// network and wall-clock access make decisions non-deterministic and open
// egress from the evaluation sandbox.
var deniedBuiltins = []string{
	"http.send",
	"net.lookup_ip_addr",
	"net.cidr_contains",
	"time.now_ns",
}

// PolicyValidator decides whether policy content may be published. The
// builtin denylist always applies; compilation goes through the engine when
// one is configured and falls back to a local structural check otherwise.
type PolicyValidator struct {
	engine policy.Engine
	logger logger.Logger
}

func NewPolicyValidator(engine policy.Engine, log logger.Logger) *PolicyValidator {
	return &PolicyValidator{engine: engine, logger: log}
}

// Validate returns the verdict and any structured issues.
func (v *PolicyValidator) Validate(ctx context.Context, policyType models.PolicyType, content string) (models.ValidationStatus, []models.ValidationIssue) {
	if policyType == models.PolicyTypeCedar {
		return models.ValidationInvalid, []models.ValidationIssue{{
			Code:    "unsupported_policy_type",
			Message: "cedar policies are not supported by the configured engine",
		}}
	}
	if strings.TrimSpace(content) == "" {
		return models.ValidationInvalid, []models.ValidationIssue{{
			Code:    "empty_content",
			Message: "policy content is empty",
		}}
	}

	if issues := v.checkDeniedBuiltins(content); len(issues) > 0 {
		return models.ValidationInvalid, issues
	}

	if v.engine.Enabled() {
		issues, err := v.engine.Compile(ctx, content)
		if err != nil {
			// Engine down: the structural check still catches gross errors;
			// full compilation happens again at publish.
			v.logger.Warn("Policy compile unavailable; using structural validation", "error", err)
			return v.structuralCheck(content)
		}
		if len(issues) > 0 {
			return models.ValidationInvalid, issues
		}
		return models.ValidationValid, nil
	}
	return v.structuralCheck(content)
}

// checkDeniedBuiltins scans for denylisted builtins used as imports or
// called directly.
func (v *PolicyValidator) checkDeniedBuiltins(content string) []models.ValidationIssue {
	var issues []models.ValidationIssue
	for lineNo, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		for _, builtin := range deniedBuiltins {
			importForm := "import " + builtin
			callForm := builtin + "("
			if strings.HasPrefix(trimmed, importForm) || strings.Contains(trimmed, callForm) {
				issues = append(issues, models.ValidationIssue{
					Code:     "denied_builtin",
					Message:  fmt.Sprintf("builtin %q is not permitted in policies", builtin),
					Location: fmt.Sprintf("%d:1", lineNo+1),
				})
			}
		}
	}
	return issues
}

// structuralCheck is the engine-less fallback: a package declaration and
// balanced brackets. It cannot prove the policy compiles, only that it is
// not obviously broken.
func (v *PolicyValidator) structuralCheck(content string) (models.ValidationStatus, []models.ValidationIssue) {
	var issues []models.ValidationIssue

	hasPackage := false
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "package ") {
			hasPackage = true
			break
		}
	}
	if !hasPackage {
		issues = append(issues, models.ValidationIssue{
			Code:    "missing_package",
			Message: "policy must declare a package",
		})
	}

	if loc, ok := unbalancedBracket(content); ok {
		issues = append(issues, models.ValidationIssue{
			Code:     "unbalanced_brackets",
			Message:  "brackets are not balanced",
			Location: loc,
		})
	}

	if len(issues) > 0 {
		return models.ValidationInvalid, issues
	}
	return models.ValidationValid, nil
}

// unbalancedBracket walks the content tracking bracket nesting outside of
// string literals and comments.
func unbalancedBracket(content string) (string, bool) {
	type open struct {
		ch   byte
		line int
	}
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}
	var stack []open
	line := 1
	inString := false
	inComment := false

	for i := 0; i < len(content); i++ {
		c := content[i]
		switch {
		case c == '\n':
			line++
			inComment = false
		case inComment:
		case c == '"' :
			if !inString || i == 0 || content[i-1] != '\\' {
				inString = !inString
			}
		case inString:
		case c == '#':
			inComment = true
		case c == '(' || c == '[' || c == '{':
			stack = append(stack, open{ch: c, line: line})
		case c == ')' || c == ']' || c == '}':
			if len(stack) == 0 || stack[len(stack)-1].ch != pairs[c] {
				return fmt.Sprintf("%d:1", line), true
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Sprintf("%d:1", stack[len(stack)-1].line), true
	}
	return "", false
}
