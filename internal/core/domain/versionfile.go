package domain

import (
	"bufio"
	"bytes"
	"strings"
)

// ParseVersionFile extracts the semantic version from the contents of a
// version file. Both a Python-style assignment and a bare version line are
// accepted; comments and blank lines are skipped.
//
// Example:
//
//	ParseVersionFile([]byte(`__version__ = "1.2.3"`)) // "1.2.3"
//	ParseVersionFile([]byte("1.2.3\n"))               // "1.2.3"
func ParseVersionFile(content []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		value := line
		if name, rhs, ok := strings.Cut(line, "="); ok {
			if strings.TrimSpace(name) != "__version__" {
				continue
			}
			value = rhs
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if value == "" {
			continue
		}
		if err := ValidateSegment("version", value); err != nil {
			return "", err
		}
		return value, nil
	}
	return "", ErrVersionFileUnreadable
}
