package serializer

import (
	"fmt"

	"go.yaml.in/yaml/v3"

	"github.com/svcreg-labs/svcreg/internal/service"
)

// YAML stores definitions as YAML documents, claiming both common extensions.
type YAML struct{}

// Encode renders the definition as a YAML document.
func (YAML) Encode(def *service.Definition) ([]byte, error) {
	data, err := yaml.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encoding definition %d: %w", def.ID, err)
	}
	return data, nil
}

// Decode parses YAML bytes into a definition.
func (YAML) Decode(data []byte) (*service.Definition, error) {
	var def service.Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("decoding YAML definition: %w", err)
	}
	return &def, nil
}

// Extensions returns the extensions owned by the YAML serializer.
func (YAML) Extensions() []string { return []string{"yaml", "yml"} }
