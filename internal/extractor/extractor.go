package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kgraph/internal/domain"
	"kgraph/internal/errs"
	"kgraph/internal/schema"
)

// Extractor turns one episode into the entities and edges it yields,
// delegating the actual inference to a Provider and enforcing the "no extra
// fields" schema contract on whatever comes back.
type Extractor struct {
	provider Provider
	logger   *zap.Logger
}

// New builds an Extractor over provider, logging through logger.
func New(provider Provider, logger *zap.Logger) *Extractor {
	return &Extractor{provider: provider, logger: logger}
}

// extractionResult is the wire shape the prompt instructs the model to
// return: entities named within this episode, plus edges relating them by
// name (resolved to UUIDs once the entities are minted).
type extractionResult struct {
	Entities []rawEntity `json:"entities"`
	Edges    []rawEdge   `json:"edges"`
}

type rawEntity struct {
	Name       string         `json:"name"`
	Schema     string         `json:"schema"`
	Summary    string         `json:"summary"`
	Labels     []string       `json:"labels"`
	Attributes map[string]any `json:"attributes"`
}

type rawEdge struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
	Fact     string `json:"fact"`
}

// Extract runs the full C3 contract: format-dependent input handling,
// prompting the provider with the resolved schema set, and validating the
// response before minting domain objects. schemas is the snapshot resolved
// at enqueue time (spec §4.4 step 3 — "all currently registered schemas").
func (e *Extractor) Extract(ctx context.Context, ep domain.Episode, schemas map[string]schema.Schema) ([]domain.EntityNode, []domain.EntityEdge, error) {
	body := e.prepareBody(ep)

	prompt := buildPrompt(ep, body, schemas)
	raw, err := e.provider.Complete(ctx, prompt, CompletionOptions{Temperature: 0, MaxTokens: 4096, Format: "json"})
	if err != nil {
		return nil, nil, errs.Wrap(errs.ExtractionFailed, "extractor backend call failed", err)
	}

	var result extractionResult
	if err := json.Unmarshal([]byte(stripFences(raw)), &result); err != nil {
		return nil, nil, errs.Wrap(errs.ExtractionFailed, "extractor response was not valid JSON", err)
	}

	if err := validateEntities(result.Entities, schemas); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	nameToUUID := make(map[string]string, len(result.Entities))
	entities := make([]domain.EntityNode, 0, len(result.Entities))
	for _, re := range result.Entities {
		id := uuid.NewString()
		nameToUUID[re.Name] = id
		entities = append(entities, domain.EntityNode{
			UUID:       id,
			Name:       re.Name,
			Summary:    re.Summary,
			Labels:     re.Labels,
			Namespace:  ep.Namespace,
			CreatedAt:  now,
			Attributes: re.Attributes,
		})
	}

	edges := make([]domain.EntityEdge, 0, len(result.Edges))
	for _, rl := range result.Edges {
		srcID, srcOK := nameToUUID[rl.Source]
		dstID, dstOK := nameToUUID[rl.Target]
		if !srcOK || !dstOK {
			e.logger.Warn("dropping edge referencing unknown entity",
				zap.String("source", rl.Source), zap.String("target", rl.Target))
			continue
		}
		edges = append(edges, domain.EntityEdge{
			UUID:       uuid.NewString(),
			SourceUUID: srcID,
			TargetUUID: dstID,
			Relation:   rl.Relation,
			FactText:   rl.Fact,
			ValidFrom:  now,
			Namespace:  ep.Namespace,
			CreatedAt:  now,
		})
	}

	return entities, edges, nil
}

// prepareBody applies spec §4.3's format-dependent input handling. json
// bodies that fail to parse fall back to being treated as text rather than
// rejecting the episode (lenient fallback, spec.md §4.3/§9).
func (e *Extractor) prepareBody(ep domain.Episode) string {
	switch ep.Format {
	case domain.FormatJSON:
		var probe any
		if err := json.Unmarshal([]byte(ep.Body), &probe); err != nil {
			e.logger.Warn("episode body declared json but failed to parse; processing as text",
				zap.String("episode_uuid", ep.UUID), zap.Error(err))
			return ep.Body
		}
		return ep.Body
	default:
		return ep.Body
	}
}

func buildPrompt(ep domain.Episode, body string, schemas map[string]schema.Schema) string {
	var sb strings.Builder
	sb.WriteString("You extract structured entities and relations from submitted episodes.\n")
	sb.WriteString(fmt.Sprintf("Episode name: %s\nFormat: %s\nSource: %s\n\n", ep.Name, ep.Format, ep.SourceDescription))

	sb.WriteString("Schemas available (an entity's \"schema\" field must name exactly one of these, and its \"attributes\" must use only the fields listed, nothing else):\n")
	for _, s := range schemas {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", s.Name, s.Description))
		for _, f := range s.Fields {
			req := ""
			if f.Required {
				req = " (required)"
			}
			sb.WriteString(fmt.Sprintf("    - %s: %s%s — %s\n", f.Name, f.Type, req, f.Description))
		}
	}

	sb.WriteString("\nRespond with a single JSON object: {\"entities\":[{\"name\":...,\"schema\":...,\"summary\":...,\"labels\":[...],\"attributes\":{...}}],\"edges\":[{\"source\":...,\"target\":...,\"relation\":...,\"fact\":...}]}.\n")
	sb.WriteString("source and target in edges must name entities also present in this response's entities list.\n\n")
	sb.WriteString("Episode body:\n")
	sb.WriteString(body)
	return sb.String()
}

// stripFences removes a leading/trailing markdown code fence, matching the
// teacher's llm.Service response-parsing style for providers that wrap JSON
// in ```json ... ``` despite being asked not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
