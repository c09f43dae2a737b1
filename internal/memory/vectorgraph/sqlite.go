package vectorgraph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/kart-io/agentmem/internal/memory/model"
	memerr "github.com/kart-io/agentmem/pkg/errors"
	"github.com/kart-io/agentmem/pkg/id"
)

// schema mirrors the node/edge/vector layout: nodes carry their label set and
// a JSON metadata blob; filterable properties are promoted into a narrow
// key/value side table (node_filters) so required-property matches are plain
// indexed equality lookups rather than JSON probes, per the property-mangling
// contract in the vector-graph store's on-disk format. Edges carry no foreign
// keys — referential integrity is managed at the application level.
const schema = `
CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    labels TEXT NOT NULL,
    metadata TEXT NOT NULL,
    filterable TEXT NOT NULL,
    timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nodes_timestamp ON nodes(timestamp);

CREATE TABLE IF NOT EXISTS node_filters (
    node_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_node_filters_key_value ON node_filters(key, value);
CREATE INDEX IF NOT EXISTS idx_node_filters_node ON node_filters(node_id);

CREATE TABLE IF NOT EXISTS edges (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    label TEXT NOT NULL,
    properties TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id, label);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id, label);

CREATE VIRTUAL TABLE IF NOT EXISTS node_vectors USING vec0(
    node_id TEXT PRIMARY KEY,
    embedding FLOAT[%d]
);
`

// SQLiteStore is the default embedded Store backend: nodes/edges in ordinary
// SQLite tables, embeddings in a sqlite-vec virtual table, joined by node id.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	metric SimilarityMetric
	dim    int
}

// SQLiteConfig configures a SQLiteStore.
type SQLiteConfig struct {
	// Path is the database file path, or ":memory:" for an ephemeral store.
	Path string
	// Dimension is the embedding width the vec0 virtual table is created with.
	Dimension int
	// Metric selects the similarity ordering used by SearchSimilarNodes.
	Metric SimilarityMetric
}

// NewSQLiteStore opens (creating if absent) a SQLite-backed Store.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, memerr.ErrInvalidConfig.WithMessage("sqlite store: path is required")
	}
	if cfg.Dimension <= 0 {
		return nil, memerr.ErrInvalidConfig.WithMessage("sqlite store: dimension must be positive")
	}
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline; SQLite serializes writes anyway

	if _, err := db.Exec(fmt.Sprintf(schema, cfg.Dimension)); err != nil {
		db.Close()
		return nil, memerr.ErrStoreUnavailable.WithCause(fmt.Errorf("apply schema: %w", err))
	}

	return &SQLiteStore{db: db, metric: cfg.Metric, dim: cfg.Dimension}, nil
}

var _ Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) AddNode(ctx context.Context, labels []string, properties model.FilterableProperties, metadata map[string]any, embedding []float32, timestamp time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodeID := id.NewUUID()

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", memerr.ErrInvalidArgument.WithCause(err)
	}
	filterJSON, err := json.Marshal(properties)
	if err != nil {
		return "", memerr.ErrInvalidArgument.WithCause(err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", memerr.ErrStoreUnavailable.WithCause(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO nodes (id, labels, metadata, filterable, timestamp) VALUES (?, ?, ?, ?, ?)`,
		nodeID, strings.Join(labels, ","), string(metaJSON), string(filterJSON), timestamp.UnixNano(),
	); err != nil {
		return "", memerr.ErrStoreUnavailable.WithCause(err)
	}

	for k, v := range properties {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO node_filters (node_id, key, value) VALUES (?, ?, ?)`,
			nodeID, k, fmt.Sprintf("%v", v),
		); err != nil {
			return "", memerr.ErrStoreUnavailable.WithCause(err)
		}
	}

	if len(embedding) > 0 {
		vecJSON, err := json.Marshal(embedding)
		if err != nil {
			return "", memerr.ErrInvalidArgument.WithCause(err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO node_vectors (node_id, embedding) VALUES (?, ?)`,
			nodeID, string(vecJSON),
		); err != nil {
			return "", memerr.ErrStoreUnavailable.WithCause(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", memerr.ErrStoreUnavailable.WithCause(err)
	}
	return nodeID, nil
}

func (s *SQLiteStore) AddEdge(ctx context.Context, fromID, label, toID string, properties map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return memerr.ErrInvalidArgument.WithCause(err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO edges (id, source_id, target_id, label, properties, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id.NewUUID(), fromID, label, toID, string(propsJSON), time.Now().UnixNano(),
	)
	if err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

func (s *SQLiteStore) SetNodeProperty(ctx context.Context, nodeID string, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	defer tx.Rollback()

	var filterStr string
	if err := tx.QueryRowContext(ctx, `SELECT filterable FROM nodes WHERE id = ?`, nodeID).Scan(&filterStr); err != nil {
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
	if _, err := tx.ExecContext(ctx, `UPDATE nodes SET filterable = ? WHERE id = ?`, string(updated), nodeID); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM node_filters WHERE node_id = ? AND key = ?`, nodeID, key); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO node_filters (node_id, key, value) VALUES (?, ?, ?)`, nodeID, key, fmt.Sprintf("%v", value),
	); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}

	if err := tx.Commit(); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

// requiredFilterIDs returns node ids matching required exactly, or nil (meaning
// "no filter applied") when required is empty.
func (s *SQLiteStore) requiredFilterIDs(ctx context.Context, required model.FilterableProperties) (map[string]bool, error) {
	if len(required) == 0 {
		return nil, nil
	}

	var candidateSet map[string]bool
	for k, v := range required {
		rows, err := s.db.QueryContext(ctx,
			`SELECT node_id FROM node_filters WHERE key = ? AND value = ?`, k, fmt.Sprintf("%v", v))
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

		if candidateSet == nil {
			candidateSet = matched
		} else {
			for nodeID := range candidateSet {
				if !matched[nodeID] {
					delete(candidateSet, nodeID)
				}
			}
		}
	}
	return candidateSet, nil
}

func (s *SQLiteStore) loadNode(ctx context.Context, nodeID string) (Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT labels, metadata, filterable, timestamp FROM nodes WHERE id = ?`, nodeID)

	var labelsStr, metaStr, filterStr string
	var ts int64
	if err := row.Scan(&labelsStr, &metaStr, &filterStr, &ts); err != nil {
		if err == sql.ErrNoRows {
			return Node{}, memerr.ErrStoreNotFound.WithMessage(nodeID)
		}
		return Node{}, memerr.ErrStoreUnavailable.WithCause(err)
	}

	var metadata map[string]any
	if err := json.Unmarshal([]byte(metaStr), &metadata); err != nil {
		return Node{}, memerr.ErrStoreUnavailable.WithCause(err)
	}
	var filterable model.FilterableProperties
	if err := json.Unmarshal([]byte(filterStr), &filterable); err != nil {
		return Node{}, memerr.ErrStoreUnavailable.WithCause(err)
	}

	return Node{
		ID:         nodeID,
		Labels:     splitLabels(labelsStr),
		Properties: filterable,
		Metadata:   metadata,
		Timestamp:  time.Unix(0, ts),
	}, nil
}

func splitLabels(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func (s *SQLiteStore) SearchSimilarNodes(ctx context.Context, queryEmbedding []float32, labels []string, required model.FilterableProperties, limit int) ([]Scored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed, err := s.requiredFilterIDs(ctx, required)
	if err != nil {
		return nil, err
	}

	queryJSON, err := json.Marshal(queryEmbedding)
	if err != nil {
		return nil, memerr.ErrInvalidArgument.WithCause(err)
	}

	// Over-fetch from the vector index before applying label/property filters
	// and re-deriving a bounded result, since vec0 only orders by distance.
	overfetch := limit * 8
	if overfetch < 64 {
		overfetch = 64
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, distance FROM node_vectors WHERE embedding MATCH ? ORDER BY distance LIMIT ?`,
		string(queryJSON), overfetch,
	)
	if err != nil {
		return nil, memerr.ErrStoreUnavailable.WithCause(err)
	}
	defer rows.Close()

	var out []Scored
	for rows.Next() {
		var nodeID string
		var distance float64
		if err := rows.Scan(&nodeID, &distance); err != nil {
			return nil, memerr.ErrStoreUnavailable.WithCause(err)
		}
		if allowed != nil && !allowed[nodeID] {
			continue
		}

		node, err := s.loadNode(ctx, nodeID)
		if err != nil {
			continue
		}
		if !hasAnyLabel(node.Labels, labels) {
			continue
		}

		out = append(out, Scored{Node: node, Similarity: distanceToSimilarity(s.metric, distance)})
		if len(out) >= limit*4 {
			break
		}
	}

	sortScored(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func hasAnyLabel(nodeLabels, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := map[string]bool{}
	for _, l := range nodeLabels {
		set[l] = true
	}
	for _, l := range want {
		if set[l] {
			return true
		}
	}
	return false
}

func distanceToSimilarity(metric SimilarityMetric, distance float64) float64 {
	switch metric {
	case MetricCosine, MetricDot:
		return 1 - distance
	default:
		return -distance
	}
}

func sortScored(items []Scored) {
	// stable insertion sort: descending similarity, ties broken by newer timestamp first.
	for i := 1; i < len(items); i++ {
		j := i
		for j > 0 && less(items[j], items[j-1]) {
			items[j], items[j-1] = items[j-1], items[j]
			j--
		}
	}
}

func less(a, b Scored) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	return a.Node.Timestamp.After(b.Node.Timestamp)
}

func (s *SQLiteStore) SearchDirectionalNodes(ctx context.Context, labels []string, required model.FilterableProperties, orderBy string, dir Direction, startAt any, limit int) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed, err := s.requiredFilterIDs(ctx, required)
	if err != nil {
		return nil, err
	}

	// orderBy is always "timestamp" in this codebase's usage (the postulator's
	// only ordering need); supporting an arbitrary property would require a
	// join against node_filters, which the current callers never exercise.
	op := "<"
	orderSQL := "DESC"
	if dir == Ascending {
		op = ">"
		orderSQL = "ASC"
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
	// Secondary sort by id ascending breaks equal-timestamp ties
	// deterministically, matching the postulator's UUID lexicographic
	// tie-break.
	query += fmt.Sprintf(" ORDER BY timestamp %s, id ASC LIMIT ?", orderSQL)
	args = append(args, limit*4+len(allowed)) // modest overfetch for label/filter narrowing

	_ = orderBy
	rows, err := s.db.QueryContext(ctx, query, args...)
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
		node, err := s.loadNode(ctx, nodeID)
		if err != nil {
			continue
		}
		if !hasAnyLabel(node.Labels, labels) {
			continue
		}
		out = append(out, node)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *SQLiteStore) TraverseEdges(ctx context.Context, fromID, edgeLabel string, dir EdgeDirection) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := "target_id"
	whereCol := "source_id"
	if dir == Incoming {
		col = "source_id"
		whereCol = "target_id"
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM edges WHERE %s = ? AND label = ?`, col, whereCol),
		fromID, edgeLabel,
	)
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
		node, err := s.loadNode(ctx, nodeID)
		if err != nil {
			continue
		}
		out = append(out, node)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteSubgraph(ctx context.Context, required model.FilterableProperties) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	allowed, err := s.requiredFilterIDs(ctx, required)
	if err != nil {
		return err
	}
	if allowed == nil {
		return memerr.ErrInvalidArgument.WithMessage("delete_subgraph requires a non-empty property filter")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	defer tx.Rollback()

	for nodeID := range allowed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, nodeID); err != nil {
			return memerr.ErrStoreUnavailable.WithCause(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM node_filters WHERE node_id = ?`, nodeID); err != nil {
			return memerr.ErrStoreUnavailable.WithCause(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM node_vectors WHERE node_id = ?`, nodeID); err != nil {
			return memerr.ErrStoreUnavailable.WithCause(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE source_id = ? OR target_id = ?`, nodeID, nodeID); err != nil {
			return memerr.ErrStoreUnavailable.WithCause(err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return memerr.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
