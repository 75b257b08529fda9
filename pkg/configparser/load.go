package configparser

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrNoFilePath = errors.New("no file path provided")

// LoadYamlFile reads a flat-ish YAML file and exports its keys as
// environment variables (SECTION_KEY=value). Values already present in
// the environment win. Supports the ${VAR:-default} substitution form.
func LoadYamlFile(filepath string) error {
	if filepath == "" {
		return ErrNoFilePath
	}

	file, err := os.Open(filepath)
	if err != nil {
		return fmt.Errorf("could not open YAML file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	sections := []string{}
	prevIndent := 0

	for scanner.Scan() {
		line := scanner.Text()

		content := strings.TrimSpace(line)
		if content == "" || strings.HasPrefix(content, "#") {
			continue
		}

		indent := leadingSpaces(line)
		if indent < prevIndent {
			// Отступ уменьшился — выходим из вложенных секций.
			pop := (prevIndent - indent) / 2
			for i := 0; i < pop && len(sections) > 0; i++ {
				sections = sections[:len(sections)-1]
			}
		}
		prevIndent = indent

		// Section header: "redis:" without a value.
		if strings.HasSuffix(content, ":") && !strings.Contains(content, ": ") {
			sections = append(sections, strings.TrimSuffix(content, ":"))
			continue
		}

		key, value, ok := strings.Cut(content, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if value == "" {
			continue
		}

		value = expandDefault(value)

		envKey := strings.ToUpper(key)
		if len(sections) > 0 {
			envKey = strings.ToUpper(strings.Join(append(sections, key), "_"))
		}

		if os.Getenv(envKey) == "" {
			if err := os.Setenv(envKey, value); err != nil {
				return fmt.Errorf("could not set env var %s: %w", envKey, err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading YAML file: %w", err)
	}

	return nil
}

func leadingSpaces(line string) int {
	n := 0
	for _, ch := range line {
		if ch != ' ' {
			break
		}
		n++
	}
	return n
}

// expandDefault resolves the "${VAR:-default}" form against the
// current environment.
func expandDefault(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}
	inner := value[2 : len(value)-1]
	name, def, ok := strings.Cut(inner, ":-")
	if !ok {
		return value
	}
	if env := os.Getenv(strings.TrimSpace(name)); env != "" {
		return env
	}
	return strings.TrimSpace(def)
}
