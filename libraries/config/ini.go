package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// loadINI reads key = value lines. Blank lines, "#" and ";" comments and
// [section] headers are skipped; keys match a field name or alias.
func loadINI(path string, fields []*field, strict bool) error {
	byKey := make(map[string]*field)
	for _, f := range fields {
		byKey[f.name] = f
		for _, a := range f.aliases {
			byKey[a] = f
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}
		if line[0] == '[' && line[len(line)-1] == ']' {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		f, ok := byKey[key]
		if !ok {
			if strict {
				return fmt.Errorf("unknown configuration key at line %d: %s", lineNum, key)
			}
			continue
		}
		if err := f.Set(value); err != nil {
			return fmt.Errorf("error parsing '%s' at line %d: %w", key, lineNum, err)
		}
	}
	return scanner.Err()
}
