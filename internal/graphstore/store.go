// Package graphstore implements the Graph Store Adapter (C2): persistence
// and search over episodic nodes, entity nodes, and entity edges, scoped by
// namespace. Store has two implementations — MemoryStore for tests and
// small deployments, DynamoStore for a real deployment target — chosen by
// internal/config's GraphStore.Backend.
package graphstore

import (
	"context"
	"time"

	"kgraph/internal/domain"
	"kgraph/internal/schema"
)

// SearchOptions parameterizes search_nodes/search_facts (spec.md §4.2/§4.5).
type SearchOptions struct {
	Query       string
	Namespaces  []string
	Limit       int
	CenterUUID  string
	LabelFilter string
}

// Store is the full C2 contract. Implementations must be safe for
// concurrent use: the ingestion engine drives one call per namespace
// concurrently with reads from the dispatcher.
type Store interface {
	// BuildIndicesAndConstraints prepares the backend (schema/migrations for
	// a real database; a no-op for the in-memory store) before first use.
	BuildIndicesAndConstraints(ctx context.Context) error

	// AddEpisode persists ep and, internally, invokes the extractor against
	// schemas to derive and persist the entities/edges it yields (spec.md
	// §4.4 step 4 — "Internally this calls C3").
	AddEpisode(ctx context.Context, ep domain.Episode, schemas map[string]schema.Schema) error

	SearchNodes(ctx context.Context, opts SearchOptions) ([]domain.EntityNode, error)
	SearchFacts(ctx context.Context, opts SearchOptions) ([]domain.EntityEdge, error)
	GetEntityEdge(ctx context.Context, uuid string) (domain.EntityEdge, error)
	GetEpisodes(ctx context.Context, namespace string, lastN int, referenceTime time.Time) ([]domain.EpisodicNode, error)
	DeleteEntityEdge(ctx context.Context, uuid string) error
	DeleteEpisode(ctx context.Context, uuid string) error

	// Clear removes every node/edge/episode in namespace. Scoping to a
	// single namespace (rather than wiping the whole backend) is enforced
	// by the caller (internal/mcpserver via internal/guard); Store just
	// does what it's told.
	Clear(ctx context.Context, namespace string) error

	// VerifyConnectivity backs the status resource (spec.md §4.5/§4.6).
	VerifyConnectivity(ctx context.Context) error

	// Rebuild triggers the best-effort community/summary rebuild after a
	// successful AddEpisode (spec.md §4.4 step 5, supplemented from
	// original_source/graphiti_mcp_server.py's build_communities). Failures
	// here are logged by the caller and never fail the ingestion task.
	Rebuild(ctx context.Context, namespace string) error
}

// Extractor is the narrow slice of internal/extractor.Extractor that
// AddEpisode needs. Declared here (rather than importing internal/extractor
// directly) to keep graphstore the leaf: extractor does not depend on
// graphstore, and graphstore depends only on this interface.
type Extractor interface {
	Extract(ctx context.Context, ep domain.Episode, schemas map[string]schema.Schema) ([]domain.EntityNode, []domain.EntityEdge, error)
}
