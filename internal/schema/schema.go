// Package schema implements the extraction-schema registry (C1): discovery
// of declarative schema documents at startup, and read-only lookup
// thereafter.
//
// The source system walked directories and introspected source-file type
// declarations for "schema-shaped" types. Without runtime source
// introspection, this is realized as approach (b) from the design notes: a
// declarative YAML file format, parsed once at startup. The two
// overlapping source directory trees (entities/, entity_types/) collapse
// into one abstract notion of a "schema source directory" — callers supply
// as many of them as they like via Source.
package schema

// Schema is one declarative extraction schema: a name, instructions for the
// extractor, and an ordered field list.
type Schema struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Fields      []Field `yaml:"fields"`
}

// Field is one ordered entry in a Schema's field list.
type Field struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Required    bool   `yaml:"required"`
	Description string `yaml:"description"`
}

// shaped reports whether a decoded document is schema-shaped: it declares a
// description and at least one field. Documents missing either are not
// registered — this is the closest a YAML decode gets to the source's
// "declares a description and one or more typed fields" introspection test.
func (s Schema) shaped() bool {
	return s.Name != "" && s.Description != "" && len(s.Fields) > 0
}
