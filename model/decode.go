package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/churn/artifact"
)

// Decode parses a serialized artifact. Unknown fields are rejected so that a
// misspelled key fails start-up instead of silently dropping a parameter.
func Decode(blob *artifact.Blob) (*Artifact, error) {
	var a Artifact

	switch blob.Format {
	case artifact.FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(blob.Data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&a); err != nil {
			return nil, fmt.Errorf("failed to decode json artifact: %w", err)
		}

	case artifact.FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(blob.Data))
		dec.KnownFields(true)
		if err := dec.Decode(&a); err != nil {
			return nil, fmt.Errorf("failed to decode yaml artifact: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported artifact format %q", blob.Format)
	}

	return &a, nil
}
