package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kgraph/internal/domain"
	"kgraph/internal/errs"
	"kgraph/internal/schema"
)

func personSchemas() map[string]schema.Schema {
	return map[string]schema.Schema{
		"person": {
			Name:        "person",
			Description: "a human being",
			Fields: []schema.Field{
				{Name: "full_name", Type: "string", Required: true},
				{Name: "role", Type: "string", Required: false},
			},
		},
	}
}

func testEpisode(format domain.Format, body string) domain.Episode {
	return domain.Episode{
		UUID:      "ep-1",
		Name:      "standup notes",
		Body:      body,
		Format:    format,
		Namespace: "acme",
	}
}

func TestExtract_MintsEntitiesAndEdgesFromWellFormedResponse(t *testing.T) {
	provider := &FakeProvider{Available: true, Script: map[string]string{
		"standup notes": `{"entities":[{"name":"Alice","schema":"person","summary":"engineer","labels":["person"],"attributes":{"full_name":"Alice Smith"}},{"name":"Bob","schema":"person","summary":"manager","attributes":{"full_name":"Bob Jones"}}],"edges":[{"source":"Alice","target":"Bob","relation":"reports_to","fact":"Alice reports to Bob"}]}`,
	}}
	e := New(provider, zap.NewNop())

	entities, edges, err := e.Extract(context.Background(), testEpisode(domain.FormatText, "standup notes: Alice reports to Bob"), personSchemas())

	require.NoError(t, err)
	require.Len(t, entities, 2)
	require.Len(t, edges, 1)
	assert.Equal(t, "acme", entities[0].Namespace)
	assert.Equal(t, entities[0].UUID, edges[0].SourceUUID)
	assert.Equal(t, entities[1].UUID, edges[0].TargetUUID)
}

func TestExtract_StripsMarkdownFencesAroundJSON(t *testing.T) {
	provider := &FakeProvider{Available: true, Script: map[string]string{
		"standup notes": "```json\n{\"entities\":[],\"edges\":[]}\n```",
	}}
	e := New(provider, zap.NewNop())

	entities, edges, err := e.Extract(context.Background(), testEpisode(domain.FormatText, "standup notes"), personSchemas())

	require.NoError(t, err)
	assert.Empty(t, entities)
	assert.Empty(t, edges)
}

func TestExtract_DropsEdgesReferencingUnknownEntities(t *testing.T) {
	provider := &FakeProvider{Available: true, Script: map[string]string{
		"standup notes": `{"entities":[{"name":"Alice","schema":"person","summary":"engineer","attributes":{"full_name":"Alice Smith"}}],"edges":[{"source":"Alice","target":"Ghost","relation":"knows","fact":"Alice knows Ghost"}]}`,
	}}
	e := New(provider, zap.NewNop())

	entities, edges, err := e.Extract(context.Background(), testEpisode(domain.FormatText, "standup notes"), personSchemas())

	require.NoError(t, err)
	assert.Len(t, entities, 1)
	assert.Empty(t, edges)
}

func TestExtract_RejectsEntityReferencingUnregisteredSchema(t *testing.T) {
	provider := &FakeProvider{Available: true, Script: map[string]string{
		"standup notes": `{"entities":[{"name":"Widget","schema":"product","attributes":{}}],"edges":[]}`,
	}}
	e := New(provider, zap.NewNop())

	_, _, err := e.Extract(context.Background(), testEpisode(domain.FormatText, "standup notes"), personSchemas())

	require.Error(t, err)
	typed, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.ExtractionFailed, typed.Kind)
}

func TestExtract_RejectsUndeclaredAttributeField(t *testing.T) {
	provider := &FakeProvider{Available: true, Script: map[string]string{
		"standup notes": `{"entities":[{"name":"Alice","schema":"person","attributes":{"full_name":"Alice Smith","ssn":"123-45-6789"}}],"edges":[]}`,
	}}
	e := New(provider, zap.NewNop())

	_, _, err := e.Extract(context.Background(), testEpisode(domain.FormatText, "standup notes"), personSchemas())

	require.Error(t, err)
	typed, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.ExtractionFailed, typed.Kind)
	assert.Equal(t, "ssn", typed.Detail["field"])
}

func TestExtract_RejectsMissingRequiredField(t *testing.T) {
	provider := &FakeProvider{Available: true, Script: map[string]string{
		"standup notes": `{"entities":[{"name":"Alice","schema":"person","attributes":{"role":"engineer"}}],"edges":[]}`,
	}}
	e := New(provider, zap.NewNop())

	_, _, err := e.Extract(context.Background(), testEpisode(domain.FormatText, "standup notes"), personSchemas())

	require.Error(t, err)
	typed, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, "full_name", typed.Detail["field"])
}

func TestExtract_MalformedJSONBodyFallsBackToText(t *testing.T) {
	provider := &FakeProvider{Available: true} // default canned {"entities":[],"edges":[]}
	e := New(provider, zap.NewNop())

	entities, edges, err := e.Extract(context.Background(), testEpisode(domain.FormatJSON, "{not valid json"), personSchemas())

	require.NoError(t, err)
	assert.Empty(t, entities)
	assert.Empty(t, edges)
}

func TestExtract_WrapsProviderErrorAsExtractionFailed(t *testing.T) {
	provider := &FakeProvider{Available: true, Err: assertError{"backend unreachable"}}
	e := New(provider, zap.NewNop())

	_, _, err := e.Extract(context.Background(), testEpisode(domain.FormatText, "standup notes"), personSchemas())

	typed, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.ExtractionFailed, typed.Kind)
}

func TestExtract_InvalidJSONResponseIsExtractionFailed(t *testing.T) {
	provider := &FakeProvider{Available: true, Script: map[string]string{
		"standup notes": "not json at all",
	}}
	e := New(provider, zap.NewNop())

	_, _, err := e.Extract(context.Background(), testEpisode(domain.FormatText, "standup notes"), personSchemas())

	typed, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.ExtractionFailed, typed.Kind)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
