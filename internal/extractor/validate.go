package extractor

import (
	"fmt"

	"kgraph/internal/errs"
	"kgraph/internal/schema"
)

// validateEntities checks every extracted entity against its declared
// schema: the schema name must be registered, every required field must be
// present, and no attribute outside the schema's field list may appear (the
// "no extra fields" rule, spec.md §4.3). The first violation fails the
// whole episode — extraction is all-or-nothing, matching "the episode
// fails" in spec.md §4.3.
func validateEntities(entities []rawEntity, schemas map[string]schema.Schema) error {
	for _, e := range entities {
		s, ok := schemas[e.Schema]
		if !ok {
			return errs.New(errs.ExtractionFailed, fmt.Sprintf("entity %q references unregistered schema %q", e.Name, e.Schema)).
				WithDetail(map[string]any{"entity": e.Name, "schema": e.Schema})
		}

		allowed := make(map[string]schema.Field, len(s.Fields))
		for _, f := range s.Fields {
			allowed[f.Name] = f
		}

		for key := range e.Attributes {
			if _, ok := allowed[key]; !ok {
				return errs.New(errs.ExtractionFailed, fmt.Sprintf("entity %q has field %q not declared in schema %q", e.Name, key, e.Schema)).
					WithDetail(map[string]any{"entity": e.Name, "schema": e.Schema, "field": key})
			}
		}

		for _, f := range s.Fields {
			if !f.Required {
				continue
			}
			if _, present := e.Attributes[f.Name]; !present {
				return errs.New(errs.ExtractionFailed, fmt.Sprintf("entity %q is missing required field %q for schema %q", e.Name, f.Name, e.Schema)).
					WithDetail(map[string]any{"entity": e.Name, "schema": e.Schema, "field": f.Name})
			}
		}
	}
	return nil
}
