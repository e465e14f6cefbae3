package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv substitutes {{.VAR}} references in raw YAML with values
// from the process environment. Go template syntax is deliberate: a
// plain $ survives untouched, so regex patterns, passwords, and shell
// snippets in the config never need escaping.
//
// Unset variables expand to the empty string; validation downstream
// rejects required fields left empty. Content that does not parse or
// execute as a template passes through unchanged.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("maestro").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	var out bytes.Buffer
	if err := tmpl.Execute(&out, environMap()); err != nil {
		return data
	}
	return out.Bytes()
}

// environMap snapshots the environment as template data, splitting each
// entry on the first "=" so values containing "=" stay intact.
func environMap() map[string]string {
	env := make(map[string]string, len(os.Environ()))
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			env[key] = value
		}
	}
	return env
}
