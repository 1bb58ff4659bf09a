package emit

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/matzehuels/flatcargo/pkg/errors"
)

//go:embed sources.schema.json
var schemaJSON string

const schemaURL = "sources.schema.json"

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource(schemaURL, bytes.NewReader([]byte(schemaJSON))); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
})

// Validate checks a source list against the schema of what flatpak-builder
// accepts from this package: known source types with their required fields,
// hex integrity values and relative destinations. A failure means Build
// produced something it should not have, so it is reported as
// INTERNAL_ERROR.
func Validate(sources []Source) error {
	schema, err := compileSchema()
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "compile source schema")
	}

	if sources == nil {
		sources = []Source{}
	}
	data, err := json.Marshal(sources)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode sources")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "decode sources")
	}

	if err := schema.Validate(doc); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "generated sources are invalid")
	}
	return nil
}
