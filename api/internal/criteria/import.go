package criteria

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Import читает набор из YAML или JSON файла: либо список, либо {criteria: [...]}.
func Import(path string) (Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Set, error) {
	var list Set
	if err := yaml.Unmarshal(raw, &list); err != nil {
		var doc struct {
			Criteria Set `yaml:"criteria"`
		}
		if err2 := yaml.Unmarshal(raw, &doc); err2 != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err2)
		}
		list = doc.Criteria
	}
	if list == nil {
		list = Set{}
	}
	list = list.Normalize()
	if err := list.Validate(); err != nil {
		return nil, err
	}
	return list, nil
}
