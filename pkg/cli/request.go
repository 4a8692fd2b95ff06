package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadRequest decodes the YAML or JSON document at path into v. A path of
// "-" reads stdin.
func LoadRequest(path string, v any) error {
	if path == "-" {
		return LoadRequestFrom(os.Stdin, v)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return ParseRequest(data, path, v)
}

// LoadRequestFrom decodes a document read from r.
func LoadRequestFrom(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return ParseRequest(data, "", v)
}

// ParseRequest decodes data into v. A .json, .yaml or .yml extension on
// name picks the decoder; otherwise documents starting with '{' or '[' are
// read as JSON and everything else as YAML.
func ParseRequest(data []byte, name string, v any) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return decodeJSON(data, v)
	case ".yaml", ".yml":
		return decodeYAML(data, v)
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return decodeJSON(data, v)
	}
	return decodeYAML(data, v)
}

func decodeJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}
	return nil
}

func decodeYAML(data []byte, v any) error {
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}
	return nil
}
