package chat

import (
	_ "embed"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var rulesYAML []byte

// Rule decides when a question needs content the analysis never fetched, and
// which page to pull in. Keywords match whole words only, so the table lists
// inflected variants explicitly instead of relying on stemming.
type Rule struct {
	Name       string   `yaml:"name"`
	Keywords   []string `yaml:"keywords"`
	Categories []string `yaml:"categories"`
	PathHint   string   `yaml:"path_hint"`
}

// Rules returns the augmentation rule table in evaluation order.
func Rules() ([]Rule, error) {
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(rulesYAML, &doc); err != nil {
		return nil, eris.Wrap(err, "chat: parse embedded rule table")
	}
	if len(doc.Rules) == 0 {
		return nil, eris.New("chat: embedded rule table is empty")
	}
	return doc.Rules, nil
}

// Matches reports whether the question contains one of the rule's keywords.
func (r Rule) Matches(question string) bool {
	terms := strings.FieldsFunc(strings.ToLower(question), func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	})
	for _, term := range terms {
		for _, kw := range r.Keywords {
			if term == kw {
				return true
			}
		}
	}
	return false
}
