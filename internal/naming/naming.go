package naming

import (
	"path/filepath"
	"strings"
)

// TableName returns the table a fixture file loads into: the file's base
// name without its extension.
// "fixtures/todos.yml" → "todos", "users.yaml" → "users", "a.b.yml" → "a.b".
func TableName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IsFixtureFile reports whether name looks like a fixture record file.
func IsFixtureFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yml", ".yaml":
		return true
	default:
		return false
	}
}
