package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/payallenka/isl/internal/core/domain"
)

const predictSchemaURL = "https://isl.local/schemas/predict.schema.json"

// predictSchema describes {"keypoints": number[SeqLen][KeypointsPerFrame]}.
var predictSchema = fmt.Sprintf(`{
  "type": "object",
  "required": ["keypoints"],
  "properties": {
    "keypoints": {
      "type": "array",
      "minItems": %[1]d,
      "maxItems": %[1]d,
      "items": {
        "type": "array",
        "minItems": %[2]d,
        "maxItems": %[2]d,
        "items": {"type": "number"}
      }
    }
  }
}`, domain.SeqLen, domain.KeypointsPerFrame)

func compilePredictSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(predictSchemaURL, strings.NewReader(predictSchema)); err != nil {
		return nil, fmt.Errorf("predict schema load failed: %w", err)
	}
	return c.Compile(predictSchemaURL)
}

// validatePredictBody checks the request shape before it reaches the model.
func validatePredictBody(schema *jsonschema.Schema, body []byte) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return err
	}
	return nil
}
