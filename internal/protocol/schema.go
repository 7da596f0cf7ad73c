package protocol

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		out := map[string]*jsonschema.Schema{}
		for _, typ := range []string{TypeRate, TypeRating, TypeError} {
			name := "schemas/" + strings.ToLower(typ) + ".schema.json"
			b, err := schemaFS.ReadFile(name)
			if err != nil {
				schemasErr = err
				return
			}
			s, err := jsonschema.CompileString("https://shipscore.ai/"+name, string(b))
			if err != nil {
				schemasErr = fmt.Errorf("%s: %w", name, err)
				return
			}
			out[typ] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

// Validate checks a raw message against the schema for its type.
func Validate(b []byte) error {
	base, err := DecodeBase(b)
	if err != nil {
		return err
	}
	all, err := loadSchemas()
	if err != nil {
		return err
	}
	s, ok := all[base.Type]
	if !ok {
		return fmt.Errorf("unknown message type %q", base.Type)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
