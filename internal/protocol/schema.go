package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// inbound maps message types the server accepts to their schema files.
var inbound = map[string]string{
	TypeHello:   "hello.schema.json",
	TypeRespawn: "respawn.schema.json",
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() {
	c := jsonschema.NewCompiler()
	out := map[string]*jsonschema.Schema{}
	for typ, name := range inbound {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			schemasErr = err
			return
		}
		if err := c.AddResource(name, bytes.NewReader(raw)); err != nil {
			schemasErr = fmt.Errorf("%s: %w", name, err)
			return
		}
		s, err := c.Compile(name)
		if err != nil {
			schemasErr = fmt.Errorf("%s: %w", name, err)
			return
		}
		out[typ] = s
	}
	schemas = out
}

// ValidateInbound checks a raw frame from the host against the schema of
// its type. Unknown types are rejected.
func ValidateInbound(b []byte) (BaseMessage, error) {
	schemasOnce.Do(compileSchemas)
	if schemasErr != nil {
		return BaseMessage{}, schemasErr
	}
	base, err := DecodeBase(b)
	if err != nil {
		return base, err
	}
	s, ok := schemas[base.Type]
	if !ok {
		return base, fmt.Errorf("unexpected message type %q", base.Type)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return base, err
	}
	if err := s.Validate(v); err != nil {
		return base, err
	}
	return base, nil
}
