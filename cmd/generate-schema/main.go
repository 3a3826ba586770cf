// Command generate-schema writes the JSON schema of the cellfs configuration
// file, for editor completion and CI validation of config.yaml.
package main

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/marmos91/cellfs/pkg/config"
	flag "github.com/spf13/pflag"
)

func main() {
	output := flag.StringP("output", "o", "config.schema.json", "Schema file to write (- for stdout)")
	flag.Parse()

	schemaJSON, err := generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}

	if *output == "-" {
		_, _ = os.Stdout.Write(schemaJSON)
		return
	}

	if err := os.WriteFile(*output, schemaJSON, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("JSON schema written to %s\n", *output)
}

// generate reflects config.Config into an indented JSON schema. Field names
// follow the mapstructure tags viper decodes with.
func generate() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true, // Inline all definitions for simplicity
		FieldNameTag:              "mapstructure",
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Title = "cellfs Configuration"
	schema.Description = "Configuration schema for the cellfs host and CLI"
	schema.Version = "1.0.0"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
