package vectorgraph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/kart-io/agentmem/internal/memory/model"
	memerr "github.com/kart-io/agentmem/pkg/errors"
	"github.com/kart-io/agentmem/pkg/id"
)

// MilvusConfig configures a MilvusStore.
type MilvusConfig struct {
	Address    string
	Username   string
	Password   string
	Database   string
	Collection string
	Dimension  int
	Metric     SimilarityMetric
	Timeout    time.Duration

	// SidePath is the SQLite file backing the edges/label/filter side table
	// (":memory:" for ephemeral use).
	SidePath string
}

// edgeSchema is the subset of SQLiteStore's schema this backend needs: Milvus
// has no graph primitive, so edges, labels and the filterable-property index
// live in a small relational side table keyed by node UUID.
const edgeSchema = `
CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    labels TEXT NOT NULL,
    metadata TEXT NOT NULL,
    filterable TEXT NOT NULL,
    timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mv_nodes_timestamp ON nodes(timestamp);

CREATE TABLE IF NOT EXISTS node_filters (
    node_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mv_node_filters_key_value ON node_filters(key, value);

CREATE TABLE IF NOT EXISTS edges (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    label TEXT NOT NULL,
    properties TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mv_edges_source ON edges(source_id, label);
CREATE INDEX IF NOT EXISTS idx_mv_edges_target ON edges(target_id, label);
`

// MilvusStore is the alternate Store backend: vectors and similarity search
// live in a Milvus collection; edges, labels and filterable properties live
// in a SQLite side table, joined by node UUID stored as a Milvus varchar field.
type MilvusStore struct {
	mu         sync.RWMutex
	client     *milvusclient.Client
	side       *sql.DB
	collection string
	metric     SimilarityMetric
}

// NewMilvusStore connects to Milvus and opens the edges side table, creating
// the vector collection if it does not already exist.
func NewMilvusStore(ctx context.Context, cfg MilvusConfig) (*MilvusStore, error) {
	if cfg.Address == "" || cfg.Collection == "" {
		return nil, memerr.ErrInvalidConfig.WithMessage("milvus store: address and collection are required")
	}
	if cfg.Dimension <= 0 {
		return nil, memerr.ErrInvalidConfig.WithMessage("milvus store: dimension must be positive")
	}
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.SidePath == "" {
		cfg.SidePath = ":memory:"
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := milvusclient.New(connectCtx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}

	side, err := sql.Open("sqlite3", cfg.SidePath)
	if err != nil {
		client.Close(ctx)
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	side.SetMaxOpenConns(1)
	if _, err := side.Exec(edgeSchema); err != nil {
		client.Close(ctx)
		side.Close()
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}

	store := &MilvusStore{client: client, side: side, collection: cfg.Collection, metric: cfg.Metric}
	if err := store.ensureCollection(ctx, cfg.Dimension); err != nil {
		client.Close(ctx)
		side.Close()
		return nil, err
	}
	return store, nil
}

var _ Store = (*MilvusStore)(nil)

func (m *MilvusStore) ensureCollection(ctx context.Context, dimension int) error {
	exists, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(m.collection))
	if err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	if exists {
		return nil
	}

	schema := entity.NewSchema().
		WithName(m.collection).
		WithDescription("memory engine derivative/episode vectors").
		WithAutoID(true).
		WithField(entity.NewField().WithName("id").WithDataType(entity.FieldTypeInt64).WithIsPrimaryKey(true).WithIsAutoID(true)).
		WithField(entity.NewField().WithName("node_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
		WithField(entity.NewField().WithName("embedding").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dimension)))

	if err := m.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(m.collection, schema)); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}

	idx := index.NewIvfFlatIndex(milvusMetric(m.metric), 128)
	idxTask, err := m.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(m.collection, "embedding", idx))
	if err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	if err := idxTask.Await(ctx); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}

	loadTask, err := m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(m.collection))
	if err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

func milvusMetric(metric SimilarityMetric) entity.MetricType {
	switch metric {
	case MetricEuclidean, MetricManhattan:
		return entity.L2
	default:
		return entity.IP
	}
}

func (m *MilvusStore) AddNode(ctx context.Context, labels []string, properties model.FilterableProperties, metadata map[string]any, embedding []float32, timestamp time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nodeID := id.NewUUID()

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", memerr.ErrInvalidArgument.WithCause(err)
	}
	filterJSON, err := json.Marshal(properties)
	if err != nil {
		return "", memerr.ErrInvalidArgument.WithCause(err)
	}

	if _, err := m.side.ExecContext(ctx,
		`INSERT INTO nodes (id, labels, metadata, filterable, timestamp) VALUES (?, ?, ?, ?, ?)`,
		nodeID, strings.Join(labels, ","), string(metaJSON), string(filterJSON), timestamp.UnixNano(),
	); err != nil {
		return "", memerr.ErrStoreUnavailable.WithCause(err)
	}
	for k, v := range properties {
		if _, err := m.side.ExecContext(ctx,
			`INSERT INTO node_filters (node_id, key, value) VALUES (?, ?, ?)`, nodeID, k, fmt.Sprintf("%v", v),
		); err != nil {
			return "", memerr.ErrStoreUnavailable.WithCause(err)
		}
	}

	if len(embedding) > 0 {
		nodeIDCol := column.NewColumnVarChar("node_id", []string{nodeID})
		vecCol := column.NewColumnFloatVector("embedding", len(embedding), [][]float32{embedding})
		if _, err := m.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(m.collection, nodeIDCol, vecCol)); err != nil {
			return "", memerr.ErrStoreUnavailable.WithCause(err)
		}
	}

	return nodeID, nil
}

func (m *MilvusStore) AddEdge(ctx context.Context, fromID, label, toID string, properties map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return memerr.ErrInvalidArgument.WithCause(err)
	}
	_, err = m.side.ExecContext(ctx,
		`INSERT INTO edges (id, source_id, target_id, label, properties, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id.NewUUID(), fromID, label, toID, string(propsJSON), time.Now().UnixNano(),
	)
	if err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

func (m *MilvusStore) SetNodeProperty(ctx context.Context, nodeID string, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var filterStr string
	if err := m.side.QueryRowContext(ctx, `SELECT filterable FROM nodes WHERE id = ?`, nodeID).Scan(&filterStr); err != nil {
		if err == sql.ErrNoRows {
			return memerr.ErrStoreNotFound.WithMessage(nodeID)
		}
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	var filterable model.FilterableProperties
	json.Unmarshal([]byte(filterStr), &filterable)
	if filterable == nil {
		filterable = model.FilterableProperties{}
	}
	filterable[key] = value

	updated, err := json.Marshal(filterable)
	if err != nil {
		return memerr.ErrInvalidArgument.WithCause(err)
	}
	if _, err := m.side.ExecContext(ctx, `UPDATE nodes SET filterable = ? WHERE id = ?`, string(updated), nodeID); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	if _, err := m.side.ExecContext(ctx, `DELETE FROM node_filters WHERE node_id = ? AND key = ?`, nodeID, key); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	if _, err := m.side.ExecContext(ctx,
		`INSERT INTO node_filters (node_id, key, value) VALUES (?, ?, ?)`, nodeID, key, fmt.Sprintf("%v", value),
	); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

func (m *MilvusStore) requiredFilterIDs(ctx context.Context, required model.FilterableProperties) (map[string]bool, error) {
	if len(required) == 0 {
		return nil, nil
	}
	var candidates map[string]bool
	for k, v := range required {
		rows, err := m.side.QueryContext(ctx, `SELECT node_id FROM node_filters WHERE key = ? AND value = ?`, k, fmt.Sprintf("%v", v))
		if err != nil {
			return nil, memerr.ErrStoreUnavailable.WithCause(err)
		}
		matched := map[string]bool{}
		for rows.Next() {
			var nodeID string
			if err := rows.Scan(&nodeID); err != nil {
				rows.Close()
				return nil, memerr.ErrStoreUnavailable.WithCause(err)
			}
			matched[nodeID] = true
		}
		rows.Close()
		if candidates == nil {
			candidates = matched
		} else {
			for nodeID := range candidates {
				if !matched[nodeID] {
					delete(candidates, nodeID)
				}
			}
		}
	}
	return candidates, nil
}

func (m *MilvusStore) loadNode(ctx context.Context, nodeID string) (Node, error) {
	row := m.side.QueryRowContext(ctx, `SELECT labels, metadata, filterable, timestamp FROM nodes WHERE id = ?`, nodeID)
	var labelsStr, metaStr, filterStr string
	var ts int64
	if err := row.Scan(&labelsStr, &metaStr, &filterStr, &ts); err != nil {
		if err == sql.ErrNoRows {
			return Node{}, memerr.ErrStoreNotFound.WithMessage(nodeID)
		}
		return Node{}, memerr.ErrStoreUnavailable.WithCause(err)
	}
	var metadata map[string]any
	json.Unmarshal([]byte(metaStr), &metadata)
	var filterable model.FilterableProperties
	json.Unmarshal([]byte(filterStr), &filterable)

	var labels []string
	if labelsStr != "" {
		labels = strings.Split(labelsStr, ",")
	}
	return Node{ID: nodeID, Labels: labels, Properties: filterable, Metadata: metadata, Timestamp: time.Unix(0, ts)}, nil
}

func (m *MilvusStore) SearchSimilarNodes(ctx context.Context, queryEmbedding []float32, labels []string, required model.FilterableProperties, limit int) ([]Scored, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	allowed, err := m.requiredFilterIDs(ctx, required)
	if err != nil {
		return nil, err
	}

	overfetch := limit * 8
	if overfetch < 64 {
		overfetch = 64
	}

	results, err := m.client.Search(ctx, milvusclient.NewSearchOption(
		m.collection, overfetch, []entity.Vector{entity.FloatVector(queryEmbedding)},
	).WithANNSField("embedding").WithSearchParam("nprobe", "16").WithOutputFields("node_id"))
	if err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	var out []Scored
	for i := 0; i < results[0].ResultCount; i++ {
		var nodeID string
		for _, field := range results[0].Fields {
			if col, ok := field.(*column.ColumnVarChar); ok && col.Name() == "node_id" {
				nodeID = col.Data()[i]
			}
		}
		if nodeID == "" || (allowed != nil && !allowed[nodeID]) {
			continue
		}
		node, err := m.loadNode(ctx, nodeID)
		if err != nil || !hasAnyLabel(node.Labels, labels) {
			continue
		}
		out = append(out, Scored{Node: node, Similarity: float64(results[0].Scores[i])})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MilvusStore) SearchDirectionalNodes(ctx context.Context, labels []string, required model.FilterableProperties, orderBy string, dir Direction, startAt any, limit int) ([]Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_ = orderBy

	allowed, err := m.requiredFilterIDs(ctx, required)
	if err != nil {
		return nil, err
	}

	op, orderSQL := "<", "DESC"
	if dir == Ascending {
		op, orderSQL = ">", "ASC"
	}

	query := `SELECT id FROM nodes WHERE 1=1`
	args := []any{}
	if startAt != nil {
		ts, ok := startAt.(time.Time)
		if !ok {
			return nil, memerr.ErrInvalidArgument.WithMessage("startAt must be a time.Time for timestamp ordering")
		}
		query += fmt.Sprintf(" AND timestamp %s ?", op)
		args = append(args, ts.UnixNano())
	}
	query += fmt.Sprintf(" ORDER BY timestamp %s, id ASC LIMIT ?", orderSQL)
	args = append(args, limit*4+64)

	rows, err := m.side.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		var nodeID string
		if err := rows.Scan(&nodeID); err != nil {
			return nil, memerr.ErrStoreUnavailable.WithCause(err)
		}
		if allowed != nil && !allowed[nodeID] {
			continue
		}
		node, err := m.loadNode(ctx, nodeID)
		if err != nil || !hasAnyLabel(node.Labels, labels) {
			continue
		}
		out = append(out, node)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MilvusStore) TraverseEdges(ctx context.Context, fromID, edgeLabel string, dir EdgeDirection) ([]Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	col, whereCol := "target_id", "source_id"
	if dir == Incoming {
		col, whereCol = "source_id", "target_id"
	}

	rows, err := m.side.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM edges WHERE %s = ? AND label = ?`, col, whereCol), fromID, edgeLabel)
	if err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		var nodeID string
		if err := rows.Scan(&nodeID); err != nil {
			return nil, memerr.ErrStoreUnavailable.WithCause(err)
		}
		node, err := m.loadNode(ctx, nodeID)
		if err != nil {
			continue
		}
		out = append(out, node)
	}
	return out, nil
}

func (m *MilvusStore) DeleteSubgraph(ctx context.Context, required model.FilterableProperties) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed, err := m.requiredFilterIDs(ctx, required)
	if err != nil {
		return err
	}
	if allowed == nil {
		return memerr.ErrInvalidArgument.WithMessage("delete_subgraph requires a non-empty property filter")
	}

	ids := make([]string, 0, len(allowed))
	for nodeID := range allowed {
		ids = append(ids, nodeID)
	}
	if len(ids) > 0 {
		expr := fmt.Sprintf(`node_id in ["%s"]`, strings.Join(ids, `","`))
		if _, err := m.client.Delete(ctx, milvusclient.NewDeleteOption(m.collection).WithExpr(expr)); err != nil {
			return memerr.ErrStoreUnavailable.WithCause(err)
		}
	}

	for _, nodeID := range ids {
		m.side.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, nodeID)
		m.side.ExecContext(ctx, `DELETE FROM node_filters WHERE node_id = ?`, nodeID)
		m.side.ExecContext(ctx, `DELETE FROM edges WHERE source_id = ? OR target_id = ?`, nodeID, nodeID)
	}
	return nil
}

func (m *MilvusStore) Ping(ctx context.Context) error {
	if _, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(m.collection)); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	return m.side.PingContext(ctx)
}

func (m *MilvusStore) Close() error {
	m.side.Close()
	return m.client.Close(context.Background())
}
