package rules

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff renders a unified diff between two rule tables after normalizing
// both through Marshal, so formatting and key order do not show up.
func Diff(fromName string, from *RuleSet, toName string, to *RuleSet) (string, error) {
	a, err := from.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", fromName, err)
	}
	b, err := to.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", toName, err)
	}
	diff := difflib.UnifiedDiff{
		A:        strings.Split(string(a), "\n"),
		B:        strings.Split(string(b), "\n"),
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("diff rules: %w", err)
	}
	return text, nil
}
