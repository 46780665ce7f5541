package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv expands environment variables in YAML content using Go template
// syntax: {{.VAR_NAME}}. Template syntax is used instead of $VAR so that
// literal dollar signs survive untouched (regex patterns, passwords, shell
// snippets embedded in config values).
//
// Missing variables expand to empty string; validation catches required
// fields that end up empty. Malformed template syntax passes the content
// through unchanged so the YAML parser can produce the clearer error.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}
	return buf.Bytes()
}
