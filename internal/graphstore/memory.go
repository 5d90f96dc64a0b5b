package graphstore

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"kgraph/internal/domain"
	"kgraph/internal/errs"
	"kgraph/internal/schema"
)

const embeddingDims = 64

// MemoryStore is an in-process, mutex-guarded Store. It is the default
// backend and the one exercised by unit tests; its hybrid-search and
// ranking logic is backend-agnostic so DynamoStore need not duplicate it.
type MemoryStore struct {
	mu sync.Mutex

	episodes map[string]domain.EpisodicNode
	entities map[string]domain.EntityNode
	edges    map[string]domain.EntityEdge

	extractor Extractor
	logger    *zap.Logger
}

// NewMemoryStore builds an empty MemoryStore driving extraction through
// extractor.
func NewMemoryStore(extractor Extractor, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		episodes:  make(map[string]domain.EpisodicNode),
		entities:  make(map[string]domain.EntityNode),
		edges:     make(map[string]domain.EntityEdge),
		extractor: extractor,
		logger:    logger,
	}
}

func (s *MemoryStore) BuildIndicesAndConstraints(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) VerifyConnectivity(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Rebuild(ctx context.Context, namespace string) error {
	return nil
}

// AddEpisode invokes the extractor on ep, then persists ep together with
// whatever entities/edges it yields; if extraction fails, nothing is
// persisted. Per spec.md §4.4 step 4, this is the one call
// site where C2 reaches into C3.
func (s *MemoryStore) AddEpisode(ctx context.Context, ep domain.Episode, schemas map[string]schema.Schema) error {
	entities, edges, err := s.extractor.Extract(ctx, ep, schemas)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.episodes[ep.UUID] = domain.EpisodicNode{
		UUID:              ep.UUID,
		Name:              ep.Name,
		Body:              ep.Body,
		Namespace:         ep.Namespace,
		CreatedAt:         ep.ReferenceTime,
		SourceDescription: ep.SourceDescription,
	}
	for _, e := range entities {
		e.Embedding = embed(e.Name + " " + e.Summary)
		s.entities[e.UUID] = e
	}
	for _, e := range edges {
		e.FactEmbedding = embed(e.FactText)
		s.edges[e.UUID] = e
	}
	return nil
}

func (s *MemoryStore) SearchNodes(ctx context.Context, opts SearchOptions) ([]domain.EntityNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.Limit == 0 {
		return []domain.EntityNode{}, nil
	}

	nsSet := toSet(opts.Namespaces)
	queryVec := embed(opts.Query)

	var candidates []domain.EntityNode
	for _, e := range s.entities {
		if len(nsSet) > 0 && !nsSet[e.Namespace] {
			continue
		}
		if opts.LabelFilter != "" && !hasLabel(e.Labels, opts.LabelFilter) {
			continue
		}
		candidates = append(candidates, e)
	}

	lexRank := rankByLexical(opts.Query, candidates, func(e domain.EntityNode) string {
		return e.Name + " " + e.Summary
	})
	vecRank := rankByVector(queryVec, candidates, func(e domain.EntityNode) []float32 {
		return e.Embedding
	})

	fused := fuseRRF(lexRank, vecRank)

	if opts.CenterUUID != "" {
		dist := bfsDistanceFromNode(opts.CenterUUID, s.edges)
		fused = reweightByGraphDistanceNode(fused, candidates, dist)
	}

	sort.SliceStable(fused, func(i, j int) bool { return fused[i].score > fused[j].score })

	limit := opts.Limit
	if limit < 0 || limit > len(fused) {
		limit = len(fused)
	}
	out := make([]domain.EntityNode, 0, limit)
	for i := 0; i < limit; i++ {
		idx := fused[i].index
		out = append(out, candidates[idx])
	}
	return out, nil
}

func (s *MemoryStore) SearchFacts(ctx context.Context, opts SearchOptions) ([]domain.EntityEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.Limit == 0 {
		return []domain.EntityEdge{}, nil
	}

	nsSet := toSet(opts.Namespaces)
	queryVec := embed(opts.Query)

	var candidates []domain.EntityEdge
	for _, e := range s.edges {
		if len(nsSet) > 0 && !nsSet[e.Namespace] {
			continue
		}
		candidates = append(candidates, e)
	}

	lexRank := rankByLexical(opts.Query, candidates, func(e domain.EntityEdge) string {
		return e.Relation + " " + e.FactText
	})
	vecRank := rankByVector(queryVec, candidates, func(e domain.EntityEdge) []float32 {
		return e.FactEmbedding
	})

	fused := fuseRRF(lexRank, vecRank)

	if opts.CenterUUID != "" {
		dist := bfsDistanceFromNode(opts.CenterUUID, s.edges)
		fused = reweightByGraphDistanceEdge(fused, candidates, dist)
	}

	sort.SliceStable(fused, func(i, j int) bool { return fused[i].score > fused[j].score })

	limit := opts.Limit
	if limit < 0 || limit > len(fused) {
		limit = len(fused)
	}
	out := make([]domain.EntityEdge, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, candidates[fused[i].index].Stripped())
	}
	return out, nil
}

func (s *MemoryStore) GetEntityEdge(ctx context.Context, uuid string) (domain.EntityEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[uuid]
	if !ok {
		return domain.EntityEdge{}, errs.New(errs.NotFound, "entity edge not found")
	}
	return e.Stripped(), nil
}

func (s *MemoryStore) GetEpisodes(ctx context.Context, namespace string, lastN int, referenceTime time.Time) ([]domain.EpisodicNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.EpisodicNode
	for _, e := range s.episodes {
		if e.Namespace != namespace {
			continue
		}
		if !referenceTime.IsZero() && e.CreatedAt.After(referenceTime) {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	if lastN <= 0 || lastN > len(matched) {
		lastN = len(matched)
	}
	return matched[:lastN], nil
}

func (s *MemoryStore) DeleteEntityEdge(ctx context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.edges, uuid)
	return nil
}

func (s *MemoryStore) DeleteEpisode(ctx context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.episodes, uuid)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.episodes {
		if v.Namespace == namespace {
			delete(s.episodes, k)
		}
	}
	for k, v := range s.entities {
		if v.Namespace == namespace {
			delete(s.entities, k)
		}
	}
	for k, v := range s.edges {
		if v.Namespace == namespace {
			delete(s.edges, k)
		}
	}
	return nil
}

func toSet(ss []string) map[string]bool {
	if len(ss) == 0 {
		return nil
	}
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}

// embed derives a deterministic bag-of-hashed-terms vector from text, so
// the in-memory store can exercise cosine-similarity ranking without a real
// embedding model. Real deployments replace this with an upstream embedding
// call; the interface (opaque []float32) is identical either way.
func embed(text string) []float32 {
	vec := make([]float32, embeddingDims)
	for _, term := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(term))
		idx := int(h.Sum32()) % embeddingDims
		if idx < 0 {
			idx += embeddingDims
		}
		vec[idx]++
	}
	normalize(vec)
	return vec
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
