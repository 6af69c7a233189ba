package category

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type defaultsFile struct {
	Categories []Input `yaml:"categories"`
}

// Defaults returns the starter categories, validated.
func Defaults() ([]*Category, error) {
	var f defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &f); err != nil {
		return nil, fmt.Errorf("failed to parse default categories: %w", err)
	}

	out := make([]*Category, 0, len(f.Categories))
	for _, in := range f.Categories {
		c, err := in.normalize()
		if err != nil {
			return nil, fmt.Errorf("default category %q: %w", in.Name, err)
		}
		out = append(out, c)
	}
	return out, nil
}
