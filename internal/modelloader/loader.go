package modelloader

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"dev.csaopt.io/csaopt/internal/core/domain"
)

// descriptor es la forma en fichero de un modelo de optimización.
type descriptor struct {
	Name         string            `yaml:"name"`
	Dimensions   int               `yaml:"dimensions"`
	Precision    string            `yaml:"precision"`
	Distribution string            `yaml:"distribution"`
	Objective    string            `yaml:"objective"`
	Globals      string            `yaml:"globals"`
	Functions    map[string]string `yaml:"functions"`
}

// Load lee un fichero de modelo y lo valida. Un slot de función ausente es un
// ValidationError fatal, detectado aquí, antes de cualquier interacción de
// red.
func Load(path string) (*domain.Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read model file %s", path)
	}

	var d descriptor
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, errors.Wrapf(err, "could not parse model file %s", path)
	}

	m := &domain.Model{
		Name:         d.Name,
		Dimensions:   d.Dimensions,
		Precision:    domain.Precision(d.Precision),
		Distribution: domain.Distribution(d.Distribution),
		Objective:    domain.Objective(d.Objective),
		Globals:      d.Globals,
		Functions:    d.Functions,
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if m.Objective == "" {
		m.Objective = domain.Minimize
	}
	if m.Functions == nil {
		m.Functions = make(map[string]string)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
