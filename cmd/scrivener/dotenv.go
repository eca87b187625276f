// ABOUTME: Applies KEY=VALUE pairs from a .env file before config loading.
// ABOUTME: Variables already present in the environment always win over file values.
package main

import (
	"os"
	"strings"
)

// loadDotEnv reads path and sets every assignment whose key is not already
// in the environment. A missing file is fine; the service simply runs on
// the real environment.
func loadDotEnv(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := parseEnvLine(line)
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, value)
		}
	}
}

// parseEnvLine extracts one KEY=VALUE assignment. Blank lines, comments,
// and lines without '=' report ok=false. An "export " prefix is tolerated
// and matching single or double quotes around the value are stripped.
func parseEnvLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")

	key, value, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", false
	}

	value = strings.TrimSpace(value)
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if first == last && (first == '"' || first == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return key, value, true
}
