// Package naming computes the canonical on-disk file name for a service
// definition. The strategy is injectable so deployments can impose their
// own layout conventions.
package naming

import (
	"fmt"
	"strings"

	"github.com/svcreg-labs/svcreg/internal/service"
)

// Strategy derives a relative file name, unique within the registry root,
// for a definition. The name must be stable across saves of the same id
// unless the definition's name changes.
type Strategy interface {
	FileName(def *service.Definition, extension string) (string, error)
}

// Default names files "<sanitizedName>-<id>.<ext>". Qualifying with the id
// makes two definitions with the same display name resolve to distinct
// files, so the default strategy cannot collide.
type Default struct{}

// FileName implements Strategy.
func (Default) FileName(def *service.Definition, extension string) (string, error) {
	if def.ID <= 0 {
		return "", fmt.Errorf("cannot name definition without a positive id")
	}
	ext := strings.TrimPrefix(extension, ".")
	if ext == "" {
		return "", fmt.Errorf("cannot name definition %d without a file extension", def.ID)
	}

	base := Sanitize(def.Name)
	if base == "" {
		return fmt.Sprintf("%d.%s", def.ID, ext), nil
	}
	return fmt.Sprintf("%s-%d.%s", base, def.ID, ext), nil
}

// Sanitize reduces a display name to a file-name-safe form: letters,
// digits, dashes and underscores survive; spaces become dashes; everything
// else is dropped.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
