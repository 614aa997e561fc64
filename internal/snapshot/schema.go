package snapshot

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// snapshotSchema is the JSON Schema the gate trusts a persisted snapshot
// against before comparing hashes.
const snapshotSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["canonical_config", "full_config_hash", "run_id", "data_fingerprint", "timestamp_utc", "env"],
  "properties": {
    "canonical_config": {"type": "object"},
    "full_config_hash": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
    "run_id": {"type": "string", "pattern": "^[0-9a-f]{12}$"},
    "data_fingerprint": {"type": ["string", "null"], "pattern": "^[0-9a-f]{64}$"},
    "timestamp_utc": {"type": "string"},
    "env": {"type": "object", "additionalProperties": {"type": "string"}}
  }
}`

// validateShape checks a raw snapshot document against snapshotSchema.
func validateShape(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(snapshotSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("snapshot schema validation could not run: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("snapshot shape invalid:")
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		sb.WriteString(fmt.Sprintf(" %s: %s;", field, desc.Description()))
	}
	return fmt.Errorf("%s", strings.TrimSuffix(sb.String(), ";"))
}
