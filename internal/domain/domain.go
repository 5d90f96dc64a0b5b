// Package domain holds the plain data types shared by every component:
// episodes on the way in, and the three persisted shapes the graph store
// hands back out. None of these types know how they are extracted,
// stored, or serialized onto the wire — that's the job of extractor,
// graphstore, and mcpserver respectively.
package domain

import "time"

// Format is the interpretation the extractor applies to an episode's body.
type Format string

const (
	FormatText    Format = "text"
	FormatMessage Format = "message"
	FormatJSON    Format = "json"
)

// RootNamespace is the default name of the one namespace permitted to
// invoke the destructive clear operation, absent configuration override.
const RootNamespace = "root"

// Episode is the unit of ingestion: what a client submits via add_episode.
type Episode struct {
	UUID               string
	Name               string
	Body               string
	Format             Format
	Namespace          string
	SourceDescription  string
	ReferenceTime      time.Time
}

// EpisodicNode is the persisted form of an Episode. It is never mutated
// after creation; it may only be deleted by UUID.
type EpisodicNode struct {
	UUID              string    `json:"uuid"`
	Name              string    `json:"name"`
	Body              string    `json:"body"`
	Namespace         string    `json:"namespace"`
	CreatedAt         time.Time `json:"created_at"`
	SourceDescription string    `json:"source_description"`
}

// EntityNode is a persisted entity extracted from one or more episodes.
type EntityNode struct {
	UUID       string         `json:"uuid"`
	Name       string         `json:"name"`
	Summary    string         `json:"summary"`
	Labels     []string       `json:"labels"`
	Namespace  string         `json:"namespace"`
	CreatedAt  time.Time      `json:"created_at"`
	Attributes map[string]any `json:"attributes"`
	Embedding  []float32      `json:"-"`
}

// EntityEdge is a persisted fact connecting two entities. FactEmbedding is
// opaque and is always stripped before a record crosses the wire.
type EntityEdge struct {
	UUID          string     `json:"uuid"`
	SourceUUID    string     `json:"source_uuid"`
	TargetUUID    string     `json:"target_uuid"`
	Relation      string     `json:"relation"`
	FactText      string     `json:"fact_text"`
	ValidFrom     time.Time  `json:"valid_from"`
	InvalidAt     *time.Time `json:"invalid_at,omitempty"`
	Namespace     string     `json:"namespace"`
	CreatedAt     time.Time  `json:"created_at"`
	FactEmbedding []float32  `json:"-"`
}

// Stripped returns a copy of the edge with the embedding field cleared, the
// shape search_facts / get_entity_edge hand back to clients.
func (e EntityEdge) Stripped() EntityEdge {
	e.FactEmbedding = nil
	return e
}
