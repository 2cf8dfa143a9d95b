package transport

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// HintRule attaches advisory remediation text to remote error messages that
// contain a known diagnostic substring. The rules are data, not control
// flow, so new hints can be added without touching the transport code.
type HintRule struct {
	Contains string `yaml:"contains"`
	Hint     string `yaml:"hint"`
}

// defaultHintRules covers the common workflow misconfiguration where the
// webhook acknowledges the trigger instead of returning the workflow result.
func defaultHintRules() []HintRule {
	return []HintRule{
		{
			Contains: "Workflow was started",
			Hint: "the remote workflow responds immediately instead of returning its result; " +
				"switch the webhook's Respond mode to the last node's output or add a Respond to Webhook node",
		},
	}
}

// LoadHintRules reads extra rules from a YAML file and appends them after
// the built-in ones. A missing file is not an error.
func LoadHintRules(path string) ([]HintRule, error) {
	rules := defaultHintRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rules, nil
		}
		return nil, fmt.Errorf("read hint rules %s: %w", path, err)
	}

	var extra []HintRule
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parse hint rules %s: %w", path, err)
	}
	return append(rules, extra...), nil
}

// applyHints sets the first matching rule's hint on err.
func applyHints(err *Error, rules []HintRule) {
	for _, r := range rules {
		if r.Contains != "" && strings.Contains(err.Message, r.Contains) {
			err.Hint = r.Hint
			return
		}
	}
}
