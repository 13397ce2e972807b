package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var format = "yaml"

func setOutputFormat(f string) error {
	switch f {
	case "yaml", "json":
		format = f
		return nil
	}
	return fmt.Errorf("unknown output format: %s", f)
}

func output(data any) error {
	return outputTo(os.Stdout, format, data)
}

// outputTo writes data as JSON or YAML. YAML goes through JSON first so the
// keys match the API's snake_case names.
func outputTo(w io.Writer, f string, data any) error {
	if f == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(generic)
}
