package service

import (
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// OrgHintEvaluator extracts an organization id from session metadata.
type OrgHintEvaluator interface {
	OrganizationID(metadata map[string]any) (string, error)
}

// jmespathOrgHint evaluates a JMESPath expression over session metadata.
type jmespathOrgHint struct {
	expr string
}

// NewOrgHintEvaluator compiles expr once to reject bad configuration early.
// An empty expression yields nil, which disables the hint.
func NewOrgHintEvaluator(expr string) (OrgHintEvaluator, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil //nolint:nilnil // a disabled hint is not an error
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return nil, fmt.Errorf("compile org hint expression %q: %w", expr, err)
	}
	return jmespathOrgHint{expr: expr}, nil
}

// OrganizationID returns the trimmed string result, or "" when the expression
// matches nothing or yields a non-string.
func (h jmespathOrgHint) OrganizationID(metadata map[string]any) (string, error) {
	if len(metadata) == 0 {
		return "", nil
	}
	out, err := jmespath.Search(h.expr, metadata)
	if err != nil {
		return "", fmt.Errorf("evaluate org hint: %w", err)
	}
	s, ok := out.(string)
	if !ok {
		return "", nil
	}
	return strings.TrimSpace(s), nil
}
