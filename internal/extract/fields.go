package extract

import (
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed fields.yaml
var fieldsYAML []byte

// fieldContactInfo is handled by the contact cross-check instead of a plain
// extraction task.
const fieldContactInfo = "contact_info"

// FieldDef describes one fixed extraction field.
type FieldDef struct {
	Name         string `yaml:"name"`
	Query        string `yaml:"query"`
	Instructions string `yaml:"instructions"`
}

// Fields returns the fixed extraction fields in canonical response order.
func Fields() ([]FieldDef, error) {
	var wrapper struct {
		Fields []FieldDef `yaml:"fields"`
	}
	if err := yaml.Unmarshal(fieldsYAML, &wrapper); err != nil {
		return nil, eris.Wrap(err, "extract: parse embedded field set")
	}
	if len(wrapper.Fields) == 0 {
		return nil, eris.New("extract: embedded field set is empty")
	}
	return wrapper.Fields, nil
}

// FieldNames returns the fixed field names in canonical response order, or
// nil if the embedded set does not parse.
func FieldNames() []string {
	defs, err := Fields()
	if err != nil {
		return nil
	}
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}
