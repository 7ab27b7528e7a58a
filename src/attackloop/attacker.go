package attackloop

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// attackerSchema is the §6.2 JSON schema the attacker provider's output must
// conform to in JSON mode.
const attackerSchema = `{
  "type": "object",
  "required": ["generatedQuestion"],
  "properties": {
    "generatedQuestion": {"type": "string"},
    "rationaleBehindJailbreak": {"type": "string"},
    "lastResponseSummary": {"type": "string"}
  }
}`

var attackerSchemaLoader = gojsonschema.NewStringLoader(attackerSchema)

// attackerOutput is the parsed §6.2 attacker JSON object.
type attackerOutput struct {
	GeneratedQuestion        string `json:"generatedQuestion"`
	RationaleBehindJailbreak string `json:"rationaleBehindJailbreak"`
	LastResponseSummary      string `json:"lastResponseSummary"`
}

// parseAttackerOutput validates raw against the attacker schema and decodes
// it. Any failure (invalid JSON or schema mismatch) is an
// attacker-parse-error: the caller skips the turn rather than aborting.
func parseAttackerOutput(raw string) (attackerOutput, error) {
	docLoader := gojsonschema.NewStringLoader(raw)
	result, err := gojsonschema.Validate(attackerSchemaLoader, docLoader)
	if err != nil {
		return attackerOutput{}, fmt.Errorf("attacker-parse-error: %w", err)
	}
	if !result.Valid() {
		return attackerOutput{}, fmt.Errorf("attacker-parse-error: output does not match schema: %v", result.Errors())
	}

	var out attackerOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return attackerOutput{}, fmt.Errorf("attacker-parse-error: %w", err)
	}
	return out, nil
}
