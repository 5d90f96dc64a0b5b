package graphstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kgraph/internal/domain"
	"kgraph/internal/errs"
	"kgraph/internal/schema"
)

type stubExtractor struct {
	entities []domain.EntityNode
	edges    []domain.EntityEdge
	err      error
}

func (s stubExtractor) Extract(ctx context.Context, ep domain.Episode, schemas map[string]schema.Schema) ([]domain.EntityNode, []domain.EntityEdge, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.entities, s.edges, nil
}

func TestAddEpisode_PersistsEpisodeEntitiesAndEdges(t *testing.T) {
	extractor := stubExtractor{
		entities: []domain.EntityNode{{UUID: "e1", Name: "Alice", Namespace: "acme"}},
		edges:    []domain.EntityEdge{{UUID: "d1", SourceUUID: "e1", TargetUUID: "e1", Relation: "self", FactText: "Alice is Alice", Namespace: "acme"}},
	}
	store := NewMemoryStore(extractor, zap.NewNop())
	ep := domain.Episode{UUID: "ep1", Name: "notes", Namespace: "acme", ReferenceTime: time.Now()}

	err := store.AddEpisode(context.Background(), ep, nil)

	require.NoError(t, err)
	episodes, err := store.GetEpisodes(context.Background(), "acme", 10, time.Time{})
	require.NoError(t, err)
	assert.Len(t, episodes, 1)

	edge, err := store.GetEntityEdge(context.Background(), "d1")
	require.NoError(t, err)
	assert.Nil(t, edge.FactEmbedding, "embedding must be stripped before crossing the wire")
}

func TestAddEpisode_PropagatesExtractorError(t *testing.T) {
	store := NewMemoryStore(stubExtractor{err: errs.New(errs.ExtractionFailed, "bad schema")}, zap.NewNop())

	err := store.AddEpisode(context.Background(), domain.Episode{UUID: "ep1", Namespace: "acme"}, nil)

	require.Error(t, err)
	typed, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.ExtractionFailed, typed.Kind)
}

func TestSearchNodes_ZeroLimitReturnsEmptyNotDefault(t *testing.T) {
	store := NewMemoryStore(stubExtractor{
		entities: []domain.EntityNode{{UUID: "e1", Name: "Alice", Namespace: "acme"}},
	}, zap.NewNop())
	require.NoError(t, store.AddEpisode(context.Background(), domain.Episode{UUID: "ep1", Namespace: "acme"}, nil))

	nodes, err := store.SearchNodes(context.Background(), SearchOptions{Query: "Alice", Namespaces: []string{"acme"}, Limit: 0})

	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestSearchNodes_FiltersByNamespace(t *testing.T) {
	store := NewMemoryStore(stubExtractor{
		entities: []domain.EntityNode{{UUID: "e1", Name: "Alice", Namespace: "acme"}},
	}, zap.NewNop())
	require.NoError(t, store.AddEpisode(context.Background(), domain.Episode{UUID: "ep1", Namespace: "acme"}, nil))

	otherNsNodes, err := store.SearchNodes(context.Background(), SearchOptions{Query: "Alice", Namespaces: []string{"other"}, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, otherNsNodes)

	sameNsNodes, err := store.SearchNodes(context.Background(), SearchOptions{Query: "Alice", Namespaces: []string{"acme"}, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, sameNsNodes, 1)
}

func TestSearchNodes_FiltersByLabel(t *testing.T) {
	store := NewMemoryStore(stubExtractor{
		entities: []domain.EntityNode{
			{UUID: "e1", Name: "Alice", Namespace: "acme", Labels: []string{"person"}},
			{UUID: "e2", Name: "Acme Corp", Namespace: "acme", Labels: []string{"org"}},
		},
	}, zap.NewNop())
	require.NoError(t, store.AddEpisode(context.Background(), domain.Episode{UUID: "ep1", Namespace: "acme"}, nil))

	nodes, err := store.SearchNodes(context.Background(), SearchOptions{Query: "", Namespaces: []string{"acme"}, Limit: 10, LabelFilter: "org"})

	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Acme Corp", nodes[0].Name)
}

func TestSearchNodes_RanksLexicalMatchAboveUnrelated(t *testing.T) {
	store := NewMemoryStore(stubExtractor{
		entities: []domain.EntityNode{
			{UUID: "e1", Name: "Alice Smith", Summary: "a backend engineer", Namespace: "acme"},
			{UUID: "e2", Name: "Unrelated Widget", Summary: "a physical product", Namespace: "acme"},
		},
	}, zap.NewNop())
	require.NoError(t, store.AddEpisode(context.Background(), domain.Episode{UUID: "ep1", Namespace: "acme"}, nil))

	nodes, err := store.SearchNodes(context.Background(), SearchOptions{Query: "Alice Smith engineer", Namespaces: []string{"acme"}, Limit: 10})

	require.NoError(t, err)
	require.NotEmpty(t, nodes)
	assert.Equal(t, "e1", nodes[0].UUID)
}

func TestSearchFacts_StripsFactEmbedding(t *testing.T) {
	store := NewMemoryStore(stubExtractor{
		entities: []domain.EntityNode{{UUID: "e1", Name: "Alice", Namespace: "acme"}, {UUID: "e2", Name: "Bob", Namespace: "acme"}},
		edges:    []domain.EntityEdge{{UUID: "d1", SourceUUID: "e1", TargetUUID: "e2", Relation: "reports_to", FactText: "Alice reports to Bob", Namespace: "acme"}},
	}, zap.NewNop())
	require.NoError(t, store.AddEpisode(context.Background(), domain.Episode{UUID: "ep1", Namespace: "acme"}, nil))

	facts, err := store.SearchFacts(context.Background(), SearchOptions{Query: "Alice Bob", Namespaces: []string{"acme"}, Limit: 10})

	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Nil(t, facts[0].FactEmbedding)
}

func TestGetEntityEdge_NotFound(t *testing.T) {
	store := NewMemoryStore(stubExtractor{}, zap.NewNop())

	_, err := store.GetEntityEdge(context.Background(), "missing")

	require.Error(t, err)
	typed, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.NotFound, typed.Kind)
}

func TestGetEpisodes_SortsNewestFirstAndTruncates(t *testing.T) {
	store := NewMemoryStore(stubExtractor{}, zap.NewNop())
	now := time.Now()
	require.NoError(t, store.AddEpisode(context.Background(), domain.Episode{UUID: "ep1", Namespace: "acme", ReferenceTime: now.Add(-2 * time.Hour)}, nil))
	require.NoError(t, store.AddEpisode(context.Background(), domain.Episode{UUID: "ep2", Namespace: "acme", ReferenceTime: now.Add(-1 * time.Hour)}, nil))
	require.NoError(t, store.AddEpisode(context.Background(), domain.Episode{UUID: "ep3", Namespace: "acme", ReferenceTime: now}, nil))

	episodes, err := store.GetEpisodes(context.Background(), "acme", 2, time.Time{})

	require.NoError(t, err)
	require.Len(t, episodes, 2)
	assert.Equal(t, "ep3", episodes[0].UUID)
	assert.Equal(t, "ep2", episodes[1].UUID)
}

func TestClear_OnlyRemovesNamedNamespace(t *testing.T) {
	store := NewMemoryStore(stubExtractor{
		entities: []domain.EntityNode{{UUID: "e1", Name: "Alice", Namespace: "acme"}},
	}, zap.NewNop())
	require.NoError(t, store.AddEpisode(context.Background(), domain.Episode{UUID: "ep1", Namespace: "acme"}, nil))
	require.NoError(t, store.AddEpisode(context.Background(), domain.Episode{UUID: "ep2", Namespace: "other"}, nil))

	require.NoError(t, store.Clear(context.Background(), "acme"))

	acmeEpisodes, _ := store.GetEpisodes(context.Background(), "acme", 10, time.Time{})
	otherEpisodes, _ := store.GetEpisodes(context.Background(), "other", 10, time.Time{})
	assert.Empty(t, acmeEpisodes)
	assert.Len(t, otherEpisodes, 1)
}

func TestDeleteEntityEdge_RemovesEdge(t *testing.T) {
	store := NewMemoryStore(stubExtractor{
		edges: []domain.EntityEdge{{UUID: "d1", Namespace: "acme", Relation: "x"}},
	}, zap.NewNop())
	require.NoError(t, store.AddEpisode(context.Background(), domain.Episode{UUID: "ep1", Namespace: "acme"}, nil))

	require.NoError(t, store.DeleteEntityEdge(context.Background(), "d1"))

	_, err := store.GetEntityEdge(context.Background(), "d1")
	assert.Error(t, err)
}
