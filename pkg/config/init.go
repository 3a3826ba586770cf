package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# cellfs Configuration File
#
# Values can be overridden with CELLFS_* environment variables, for example
# CELLFS_LOGGING_LEVEL=DEBUG or CELLFS_STORE_TYPE=memory.
`

// sectionComments documents each top-level section of the generated file.
var sectionComments = map[string]string{
	"logging":  "Log level (DEBUG, INFO, WARN, ERROR), format (text, json) and output (stdout, stderr or a file path)",
	"store":    "Cell backend. type selects memory, badger or s3; only the matching section is read",
	"host":     "Call model: cell operations per call (0 = unlimited) and mutating calls per second (0 = unlimited)",
	"metrics":  "Prometheus metrics, served on port by `cellfs serve`",
	"events":   "journal appends every committed mutation to a CBOR file (empty = disabled)",
	"identity": "Default caller identity (0x + 40 hex digits); empty is anonymous",
}

// GenerateDefaultYAML renders the default configuration as commented YAML.
func GenerateDefaultYAML() ([]byte, error) {
	cfg := GetDefaultConfig()

	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode default config: %w", err)
	}

	// doc is a mapping node: keys and values alternate
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	buf.WriteString("\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to write default config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to write default config: %w", err)
	}

	return buf.Bytes(), nil
}

// InitConfig writes the default configuration to the default location.
//
// Parameters:
//   - force: Overwrite an existing file
//
// Returns:
//   - string: Path of the written file
//   - error: If the file already exists (and force is false) or cannot be written
func InitConfig(force bool) (string, error) {
	return InitConfigToPath(GetDefaultConfigPath(), force)
}

// InitConfigToPath writes the default configuration to path.
func InitConfigToPath(path string, force bool) (string, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	data, err := GenerateDefaultYAML()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return path, nil
}
