package pipeline

import (
	"bytes"
	"encoding/json"
	"strings"

	"PostcardAgent/pkg/errors"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const requestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["conversation_id", "user_id", "character_id", "user_message"],
  "properties": {
    "conversation_id": {"type": "string", "minLength": 1},
    "user_id": {"type": "integer", "minimum": 0},
    "character_id": {"type": "integer", "minimum": 0},
    "user_message": {"type": "string"}
  }
}`

func compileRequestSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("inbound_request.json", strings.NewReader(requestSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("inbound_request.json")
}

// decodeRequest 校验并解析消息体
func decodeRequest(schema *jsonschema.Schema, payload []byte) (*InboundRequest, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, errors.Validation("empty message")
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.WrapCode(err, errors.CodeValidation, "message is not valid JSON")
	}
	if err := schema.Validate(doc); err != nil {
		return nil, errors.WrapCode(err, errors.CodeValidation, "message missing required fields")
	}

	var req InboundRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.WrapCode(err, errors.CodeValidation, "decode message")
	}
	return &req, nil
}
