package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"kgraph/internal/domain"
	"kgraph/internal/errs"
	"kgraph/internal/schema"
)

// Single-table item layout, adapted from the teacher's internal/repository/ddb
// PK/SK composite-key design: partition by namespace, sort by a
// type-prefixed identifier so episodes/entities/edges for one namespace live
// in one partition and can be range-scanned by prefix.
const (
	skPrefixEpisode = "EPISODE#"
	skPrefixEntity  = "ENTITY#"
	skPrefixEdge    = "EDGE#"
)

func nsPK(namespace string) string { return fmt.Sprintf("NS#%s", namespace) }

type ddbEpisode struct {
	PK                string `dynamodbav:"PK"`
	SK                string `dynamodbav:"SK"`
	UUID              string `dynamodbav:"uuid"`
	Name              string `dynamodbav:"name"`
	Body              string `dynamodbav:"body"`
	Namespace         string `dynamodbav:"namespace"`
	CreatedAt         int64  `dynamodbav:"created_at"`
	SourceDescription string `dynamodbav:"source_description"`
}

type ddbEntity struct {
	PK         string            `dynamodbav:"PK"`
	SK         string            `dynamodbav:"SK"`
	UUID       string            `dynamodbav:"uuid"`
	Name       string            `dynamodbav:"name"`
	Summary    string            `dynamodbav:"summary"`
	Labels     []string          `dynamodbav:"labels"`
	Namespace  string            `dynamodbav:"namespace"`
	CreatedAt  int64             `dynamodbav:"created_at"`
	Attributes map[string]string `dynamodbav:"attributes"`
}

type ddbEdge struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	UUID       string `dynamodbav:"uuid"`
	SourceUUID string `dynamodbav:"source_uuid"`
	TargetUUID string `dynamodbav:"target_uuid"`
	Relation   string `dynamodbav:"relation"`
	FactText   string `dynamodbav:"fact_text"`
	ValidFrom  int64  `dynamodbav:"valid_from"`
	InvalidAt  *int64 `dynamodbav:"invalid_at,omitempty"`
	Namespace  string `dynamodbav:"namespace"`
	CreatedAt  int64  `dynamodbav:"created_at"`
}

// DynamoStore is a Store backed by a single DynamoDB table, item-mapped the
// way the teacher's ddbRepository maps its single-table design — composite
// PK/SK keys marshaled through attributevalue, paginated scans for
// namespace-wide reads.
type DynamoStore struct {
	client    *dynamodb.Client
	table     string
	extractor Extractor
	logger    *zap.Logger
}

// NewDynamoStore builds a DynamoStore against an already-configured client.
func NewDynamoStore(client *dynamodb.Client, table string, extractor Extractor, logger *zap.Logger) *DynamoStore {
	return &DynamoStore{client: client, table: table, extractor: extractor, logger: logger}
}

func (s *DynamoStore) BuildIndicesAndConstraints(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err != nil {
		return errs.Wrap(errs.BackendUnavailable, "dynamodb table unreachable", err)
	}
	return nil
}

func (s *DynamoStore) VerifyConnectivity(ctx context.Context) error {
	return s.BuildIndicesAndConstraints(ctx)
}

func (s *DynamoStore) Rebuild(ctx context.Context, namespace string) error {
	return nil
}

func (s *DynamoStore) AddEpisode(ctx context.Context, ep domain.Episode, schemas map[string]schema.Schema) error {
	entities, edges, err := s.extractor.Extract(ctx, ep, schemas)
	if err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(ddbEpisode{
		PK:                nsPK(ep.Namespace),
		SK:                skPrefixEpisode + ep.UUID,
		UUID:              ep.UUID,
		Name:              ep.Name,
		Body:              ep.Body,
		Namespace:         ep.Namespace,
		CreatedAt:         ep.ReferenceTime.Unix(),
		SourceDescription: ep.SourceDescription,
	})
	if err != nil {
		return errs.Wrap(errs.Internal, "marshal episode item", err)
	}

	writes := []types.TransactWriteItem{{
		Put: &types.Put{TableName: aws.String(s.table), Item: item},
	}}

	for _, e := range entities {
		attrs := make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			attrs[k] = fmt.Sprintf("%v", v)
		}
		entItem, err := attributevalue.MarshalMap(ddbEntity{
			PK:         nsPK(e.Namespace),
			SK:         skPrefixEntity + e.UUID,
			UUID:       e.UUID,
			Name:       e.Name,
			Summary:    e.Summary,
			Labels:     e.Labels,
			Namespace:  e.Namespace,
			CreatedAt:  e.CreatedAt.Unix(),
			Attributes: attrs,
		})
		if err != nil {
			return errs.Wrap(errs.Internal, "marshal entity item", err)
		}
		writes = append(writes, types.TransactWriteItem{Put: &types.Put{TableName: aws.String(s.table), Item: entItem}})
	}

	for _, e := range edges {
		edgeItem, err := attributevalue.MarshalMap(ddbEdge{
			PK:         nsPK(e.Namespace),
			SK:         skPrefixEdge + e.UUID,
			UUID:       e.UUID,
			SourceUUID: e.SourceUUID,
			TargetUUID: e.TargetUUID,
			Relation:   e.Relation,
			FactText:   e.FactText,
			ValidFrom:  e.ValidFrom.Unix(),
			Namespace:  e.Namespace,
			CreatedAt:  e.CreatedAt.Unix(),
		})
		if err != nil {
			return errs.Wrap(errs.Internal, "marshal edge item", err)
		}
		writes = append(writes, types.TransactWriteItem{Put: &types.Put{TableName: aws.String(s.table), Item: edgeItem}})
	}

	// DynamoDB caps a single transaction at 100 items; chunk defensively so
	// a large extraction result doesn't blow the limit.
	for i := 0; i < len(writes); i += 100 {
		end := i + 100
		if end > len(writes) {
			end = len(writes)
		}
		if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes[i:end]}); err != nil {
			return errs.Wrap(errs.BackendUnavailable, "dynamodb transact write failed", err)
		}
	}
	return nil
}

func scanNamespacePages(ctx context.Context, client *dynamodb.Client, table, namespace, skPrefix string) ([]map[string]types.AttributeValue, error) {
	paginator := dynamodb.NewQueryPaginator(client, &dynamodb.QueryInput{
		TableName:              aws.String(table),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :skp)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":  &types.AttributeValueMemberS{Value: nsPK(namespace)},
			":skp": &types.AttributeValueMemberS{Value: skPrefix},
		},
	})
	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errs.Wrap(errs.BackendUnavailable, "dynamodb query failed", err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

func (s *DynamoStore) scanEntities(ctx context.Context, namespace string) ([]ddbEntity, error) {
	items, err := scanNamespacePages(ctx, s.client, s.table, namespace, skPrefixEntity)
	if err != nil {
		return nil, err
	}
	var rows []ddbEntity
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, errs.Wrap(errs.Internal, "unmarshal entity items", err)
	}
	return rows, nil
}

func (s *DynamoStore) scanEdges(ctx context.Context, namespace string) ([]ddbEdge, error) {
	items, err := scanNamespacePages(ctx, s.client, s.table, namespace, skPrefixEdge)
	if err != nil {
		return nil, err
	}
	var rows []ddbEdge
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, errs.Wrap(errs.Internal, "unmarshal edge items", err)
	}
	return rows, nil
}

func (s *DynamoStore) scanEpisodes(ctx context.Context, namespace string) ([]ddbEpisode, error) {
	items, err := scanNamespacePages(ctx, s.client, s.table, namespace, skPrefixEpisode)
	if err != nil {
		return nil, err
	}
	var rows []ddbEpisode
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, errs.Wrap(errs.Internal, "unmarshal episode items", err)
	}
	return rows, nil
}

func (s *DynamoStore) SearchNodes(ctx context.Context, opts SearchOptions) ([]domain.EntityNode, error) {
	if opts.Limit == 0 {
		return []domain.EntityNode{}, nil
	}
	namespaces := opts.Namespaces
	if len(namespaces) == 0 {
		return nil, errs.New(errs.InvalidArgument, "search_nodes against dynamo backend requires at least one namespace")
	}

	var rows []ddbEntity
	for _, ns := range namespaces {
		nsRows, err := s.scanEntities(ctx, ns)
		if err != nil {
			return nil, err
		}
		rows = append(rows, nsRows...)
	}

	candidates := make([]domain.EntityNode, 0, len(rows))
	for _, r := range rows {
		if opts.LabelFilter != "" && !hasLabel(r.Labels, opts.LabelFilter) {
			continue
		}
		attrs := make(map[string]any, len(r.Attributes))
		for k, v := range r.Attributes {
			attrs[k] = v
		}
		candidates = append(candidates, domain.EntityNode{
			UUID:       r.UUID,
			Name:       r.Name,
			Summary:    r.Summary,
			Labels:     r.Labels,
			Namespace:  r.Namespace,
			CreatedAt:  time.Unix(r.CreatedAt, 0).UTC(),
			Attributes: attrs,
			Embedding:  embed(r.Name + " " + r.Summary),
		})
	}

	lexRank := rankByLexical(opts.Query, candidates, func(e domain.EntityNode) string { return e.Name + " " + e.Summary })
	vecRank := rankByVector(embed(opts.Query), candidates, func(e domain.EntityNode) []float32 { return e.Embedding })
	fused := fuseRRF(lexRank, vecRank)

	if opts.CenterUUID != "" {
		edges, err := s.edgesMap(ctx, namespaces)
		if err != nil {
			return nil, err
		}
		dist := bfsDistanceFromNode(opts.CenterUUID, edges)
		fused = reweightByGraphDistanceNode(fused, candidates, dist)
	}

	sortedFused := sortDescByScore(fused)

	limit := opts.Limit
	if limit < 0 || limit > len(sortedFused) {
		limit = len(sortedFused)
	}
	out := make([]domain.EntityNode, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, candidates[sortedFused[i].index])
	}
	return out, nil
}

// edgesMap scans every edge in namespaces and keys it by UUID, the shape
// bfsDistanceFromNode needs for center_uuid-based reweighting — the same
// graph-distance hop used by MemoryStore, just sourced from a scan instead
// of an in-process map.
func (s *DynamoStore) edgesMap(ctx context.Context, namespaces []string) (map[string]domain.EntityEdge, error) {
	out := make(map[string]domain.EntityEdge)
	for _, ns := range namespaces {
		rows, err := s.scanEdges(ctx, ns)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out[r.UUID] = domain.EntityEdge{
				UUID:       r.UUID,
				SourceUUID: r.SourceUUID,
				TargetUUID: r.TargetUUID,
				Relation:   r.Relation,
				FactText:   r.FactText,
				ValidFrom:  time.Unix(r.ValidFrom, 0).UTC(),
				Namespace:  r.Namespace,
				CreatedAt:  time.Unix(r.CreatedAt, 0).UTC(),
			}
		}
	}
	return out, nil
}

func (s *DynamoStore) SearchFacts(ctx context.Context, opts SearchOptions) ([]domain.EntityEdge, error) {
	if opts.Limit == 0 {
		return []domain.EntityEdge{}, nil
	}
	namespaces := opts.Namespaces
	if len(namespaces) == 0 {
		return nil, errs.New(errs.InvalidArgument, "search_facts against dynamo backend requires at least one namespace")
	}

	var rows []ddbEdge
	for _, ns := range namespaces {
		nsRows, err := s.scanEdges(ctx, ns)
		if err != nil {
			return nil, err
		}
		rows = append(rows, nsRows...)
	}

	candidates := make([]domain.EntityEdge, 0, len(rows))
	for _, r := range rows {
		candidates = append(candidates, domain.EntityEdge{
			UUID:       r.UUID,
			SourceUUID: r.SourceUUID,
			TargetUUID: r.TargetUUID,
			Relation:   r.Relation,
			FactText:   r.FactText,
			ValidFrom:  time.Unix(r.ValidFrom, 0).UTC(),
			Namespace:  r.Namespace,
			CreatedAt:  time.Unix(r.CreatedAt, 0).UTC(),
		})
	}

	lexRank := rankByLexical(opts.Query, candidates, func(e domain.EntityEdge) string { return e.Relation + " " + e.FactText })
	vecRank := rankByVector(embed(opts.Query), candidates, func(e domain.EntityEdge) []float32 { return embed(e.FactText) })
	fused := fuseRRF(lexRank, vecRank)

	if opts.CenterUUID != "" {
		edges := make(map[string]domain.EntityEdge, len(candidates))
		for _, e := range candidates {
			edges[e.UUID] = e
		}
		dist := bfsDistanceFromNode(opts.CenterUUID, edges)
		fused = reweightByGraphDistanceEdge(fused, candidates, dist)
	}

	sortedFused := sortDescByScore(fused)

	limit := opts.Limit
	if limit < 0 || limit > len(sortedFused) {
		limit = len(sortedFused)
	}
	out := make([]domain.EntityEdge, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, candidates[sortedFused[i].index].Stripped())
	}
	return out, nil
}

func (s *DynamoStore) GetEntityEdge(ctx context.Context, uuid string) (domain.EntityEdge, error) {
	// Edges are keyed by namespace partition; without it we fall back to a
	// table-wide scan, acceptable for the modest graph sizes this adapter
	// targets.
	scanOut, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("uuid = :u AND begins_with(SK, :skp)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u":   &types.AttributeValueMemberS{Value: uuid},
			":skp": &types.AttributeValueMemberS{Value: skPrefixEdge},
		},
	})
	if err != nil {
		return domain.EntityEdge{}, errs.Wrap(errs.BackendUnavailable, "dynamodb scan failed", err)
	}
	if len(scanOut.Items) == 0 {
		return domain.EntityEdge{}, errs.New(errs.NotFound, "entity edge not found")
	}
	var row ddbEdge
	if err := attributevalue.UnmarshalMap(scanOut.Items[0], &row); err != nil {
		return domain.EntityEdge{}, errs.Wrap(errs.Internal, "unmarshal edge item", err)
	}
	return domain.EntityEdge{
		UUID:       row.UUID,
		SourceUUID: row.SourceUUID,
		TargetUUID: row.TargetUUID,
		Relation:   row.Relation,
		FactText:   row.FactText,
		ValidFrom:  time.Unix(row.ValidFrom, 0).UTC(),
		Namespace:  row.Namespace,
		CreatedAt:  time.Unix(row.CreatedAt, 0).UTC(),
	}, nil
}

func (s *DynamoStore) GetEpisodes(ctx context.Context, namespace string, lastN int, referenceTime time.Time) ([]domain.EpisodicNode, error) {
	rows, err := s.scanEpisodes(ctx, namespace)
	if err != nil {
		return nil, err
	}

	var matched []domain.EpisodicNode
	for _, r := range rows {
		created := time.Unix(r.CreatedAt, 0).UTC()
		if !referenceTime.IsZero() && created.After(referenceTime) {
			continue
		}
		matched = append(matched, domain.EpisodicNode{
			UUID:              r.UUID,
			Name:              r.Name,
			Body:              r.Body,
			Namespace:         r.Namespace,
			CreatedAt:         created,
			SourceDescription: r.SourceDescription,
		})
	}
	sortEpisodesDesc(matched)

	if lastN <= 0 || lastN > len(matched) {
		lastN = len(matched)
	}
	return matched[:lastN], nil
}

func (s *DynamoStore) DeleteEntityEdge(ctx context.Context, uuid string) error {
	edge, err := s.GetEntityEdge(ctx, uuid)
	if err != nil {
		if e, ok := errs.As(err); ok && e.Kind == errs.NotFound {
			return nil
		}
		return err
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: nsPK(edge.Namespace)},
			"SK": &types.AttributeValueMemberS{Value: skPrefixEdge + uuid},
		},
	})
	if err != nil {
		return errs.Wrap(errs.BackendUnavailable, "dynamodb delete failed", err)
	}
	return nil
}

func (s *DynamoStore) DeleteEpisode(ctx context.Context, uuid string) error {
	scanOut, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("uuid = :u AND begins_with(SK, :skp)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u":   &types.AttributeValueMemberS{Value: uuid},
			":skp": &types.AttributeValueMemberS{Value: skPrefixEpisode},
		},
	})
	if err != nil {
		return errs.Wrap(errs.BackendUnavailable, "dynamodb scan failed", err)
	}
	if len(scanOut.Items) == 0 {
		return nil
	}
	var row ddbEpisode
	if err := attributevalue.UnmarshalMap(scanOut.Items[0], &row); err != nil {
		return errs.Wrap(errs.Internal, "unmarshal episode item", err)
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: nsPK(row.Namespace)},
			"SK": &types.AttributeValueMemberS{Value: skPrefixEpisode + uuid},
		},
	})
	if err != nil {
		return errs.Wrap(errs.BackendUnavailable, "dynamodb delete failed", err)
	}
	return nil
}

func (s *DynamoStore) Clear(ctx context.Context, namespace string) error {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: nsPK(namespace)},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return errs.Wrap(errs.BackendUnavailable, "dynamodb query failed", err)
		}
		for _, item := range page.Items {
			_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(s.table),
				Key: map[string]types.AttributeValue{
					"PK": item["PK"],
					"SK": item["SK"],
				},
			})
			if err != nil {
				return errs.Wrap(errs.BackendUnavailable, "dynamodb delete failed during clear", err)
			}
		}
	}
	return nil
}

func sortDescByScore(fused []rankedIndex) []rankedIndex {
	out := make([]rankedIndex, len(fused))
	copy(out, fused)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].score > out[j-1].score; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func sortEpisodesDesc(episodes []domain.EpisodicNode) {
	for i := 1; i < len(episodes); i++ {
		for j := i; j > 0 && episodes[j].CreatedAt.After(episodes[j-1].CreatedAt); j-- {
			episodes[j], episodes[j-1] = episodes[j-1], episodes[j]
		}
	}
}
