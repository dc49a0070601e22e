package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const (
	SchemaOrder     = "order.schema.json"
	SchemaRoute     = "route.schema.json"
	SchemaItinerary = "itinerary.schema.json"
	SchemaLock      = "lock.schema.json"
)

// Validator checks request bodies against the embedded JSON schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	names, err := fs.Glob(schemaFS, "schemas/*.schema.json")
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	for _, p := range names {
		raw, err := schemaFS.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(path.Base(p), bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", p, err)
		}
	}
	v := &Validator{schemas: map[string]*jsonschema.Schema{}}
	for _, p := range names {
		name := path.Base(p)
		s, err := c.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.schemas[name] = s
	}
	return v, nil
}

func (v *Validator) Validate(name string, raw []byte) error {
	s, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return s.Validate(doc)
}

// Decode validates raw against the named schema and unmarshals it.
func Decode[T any](v *Validator, name string, raw []byte) (T, error) {
	var out T
	if err := v.Validate(name, raw); err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}
