package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Structural schemas for the two inbound message kinds. The contract context
// and delivery payload stay opaque; only the framing fields are checked.
const bidMessageSchema = `{
	"type": "object",
	"required": ["contract_id", "agent_id", "price", "promised_latency", "confidence"],
	"properties": {
		"contract_id": {"type": "string", "minLength": 1},
		"agent_id": {"type": "string", "minLength": 1},
		"price": {"type": "number", "minimum": 0},
		"promised_latency": {"type": "integer", "exclusiveMinimum": 0},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	}
}`

const deliveryMessageSchema = `{
	"type": "object",
	"required": ["contract_id", "agent_id", "payload"],
	"properties": {
		"contract_id": {"type": "string", "minLength": 1},
		"agent_id": {"type": "string", "minLength": 1},
		"payload": {"type": "string"}
	}
}`

// SchemaValidator checks inbound payload framing before the lifecycle
// manager interprets it.
type SchemaValidator struct {
	bid      *jsonschema.Schema
	delivery *jsonschema.Schema
}

func NewSchemaValidator() (*SchemaValidator, error) {
	bid, err := jsonschema.CompileString("agora://schemas/bid.json", bidMessageSchema)
	if err != nil {
		return nil, fmt.Errorf("compile bid schema: %w", err)
	}
	delivery, err := jsonschema.CompileString("agora://schemas/delivery.json", deliveryMessageSchema)
	if err != nil {
		return nil, fmt.Errorf("compile delivery schema: %w", err)
	}
	return &SchemaValidator{bid: bid, delivery: delivery}, nil
}

// ValidateBid checks a raw bid message document.
func (v *SchemaValidator) ValidateBid(doc []byte) error {
	return v.validate(v.bid, doc)
}

// ValidateDelivery checks a raw delivery message document.
func (v *SchemaValidator) ValidateDelivery(doc []byte) error {
	return v.validate(v.delivery, doc)
}

func (v *SchemaValidator) validate(schema *jsonschema.Schema, doc []byte) error {
	var generic any
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return fmt.Errorf("malformed message: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return fmt.Errorf("message schema violation: %w", err)
	}
	return nil
}
