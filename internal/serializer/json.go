package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/svcreg-labs/svcreg/internal/service"
)

// JSON stores definitions as indented JSON, the registry's default format.
type JSON struct{}

// Encode renders the definition as indented JSON with a trailing newline.
func (JSON) Encode(def *service.Definition) ([]byte, error) {
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding definition %d: %w", def.ID, err)
	}
	return append(data, '\n'), nil
}

// Decode parses JSON bytes into a definition.
func (JSON) Decode(data []byte) (*service.Definition, error) {
	var def service.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("decoding JSON definition: %w", err)
	}
	return &def, nil
}

// Extensions returns the extension owned by the JSON serializer.
func (JSON) Extensions() []string { return []string{"json"} }
