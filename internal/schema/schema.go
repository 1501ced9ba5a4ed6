// Package schema validates YAML-decoded documents against JSON Schema files.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateFile checks doc against the JSON Schema at schemaPath.
// doc is a YAML-decoded value; it is normalized through JSON first so that
// integer and key types line up with what the validator expects.
func ValidateFile(schemaPath string, doc interface{}) error {
	sch, err := jsonschema.Compile(schemaPath)
	if err != nil {
		return fmt.Errorf("compiling schema %s: %w", schemaPath, err)
	}

	normalized, err := normalize(doc)
	if err != nil {
		return err
	}

	if err := sch.Validate(normalized); err != nil {
		return fmt.Errorf("validating against %s: %w", schemaPath, err)
	}
	return nil
}

// normalize round-trips a value through JSON so maps, slices, and numbers
// take the shapes produced by encoding/json.
func normalize(doc interface{}) (interface{}, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalizing document: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalizing document: %w", err)
	}
	return out, nil
}
