package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jGraphStore Neo4j 图存储
//
// 节点统一使用 :StoryNode 标签，Label 保存在 label 属性中；
// Properties 序列化为 JSON 存入 props 属性。
type Neo4jGraphStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// Neo4jConfig Neo4j 配置
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	// Database 数据库名，为空使用服务端默认库
	Database string
}

// NewNeo4jGraphStore 创建 Neo4j 图存储
func NewNeo4jGraphStore(config Neo4jConfig) (*Neo4jGraphStore, error) {
	if config.URI == "" {
		config.URI = "bolt://localhost:7687"
	}

	auth := neo4j.NoAuth()
	if config.Username != "" && config.Password != "" {
		auth = neo4j.BasicAuth(config.Username, config.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(config.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &Neo4jGraphStore{driver: driver, database: config.Database}
	if err := s.createIndexes(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

func (s *Neo4jGraphStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

// createIndexes 创建索引
func (s *Neo4jGraphStore) createIndexes(ctx context.Context) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	for _, idx := range []string{
		"CREATE INDEX story_node_id IF NOT EXISTS FOR (n:StoryNode) ON (n.id)",
		"CREATE INDEX story_node_label IF NOT EXISTS FOR (n:StoryNode) ON (n.label)",
	} {
		if _, err := session.Run(ctx, idx, nil); err != nil && !strings.Contains(err.Error(), "already exists") {
			return err
		}
	}
	return nil
}

// UpsertNode 添加或更新节点
func (s *Neo4jGraphStore) UpsertNode(ctx context.Context, node Node) error {
	if node.ID == "" {
		return ErrInvalidInput
	}

	props, err := json.Marshal(node.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}

	created := node.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err = session.Run(ctx, `
	MERGE (n:StoryNode {id: $id})
	ON CREATE SET n.created_at = $created
	SET n.label = $label, n.props = $props
	`, map[string]any{
		"id":      node.ID,
		"label":   node.Label,
		"props":   string(props),
		"created": created.UnixMilli(),
	})
	return err
}

// GetNode 获取节点
func (s *Neo4jGraphStore) GetNode(ctx context.Context, id string) (*Node, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `MATCH (n:StoryNode {id: $id}) RETURN n`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	nodeVal, _ := result.Record().Get("n")
	n, ok := nodeVal.(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected record type %T", nodeVal)
	}
	node := toNode(n)
	return &node, nil
}

// AddEdge 添加有向边
func (s *Neo4jGraphStore) AddEdge(ctx context.Context, edge Edge) error {
	if edge.From == "" || edge.To == "" || edge.Type == "" {
		return ErrInvalidInput
	}
	created := edge.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, fmt.Sprintf(`
	MATCH (a:StoryNode {id: $from}), (b:StoryNode {id: $to})
	CREATE (a)-[r:%s {created_at: $created}]->(b)
	RETURN count(r) AS created
	`, relationType(edge.Type)), map[string]any{
		"from":    edge.From,
		"to":      edge.To,
		"created": created.UnixMilli(),
	})
	if err != nil {
		return err
	}
	if !result.Next(ctx) {
		return ErrNotFound
	}
	if n, _ := result.Record().Get("created"); n == int64(0) {
		return ErrNotFound
	}
	return result.Err()
}

// Neighbors 返回出边指向的节点，按边的创建时间倒序
func (s *Neo4jGraphStore) Neighbors(ctx context.Context, id string, edgeType string, limit int) ([]Node, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	rel := "[r]"
	if edgeType != "" {
		rel = "[r:" + relationType(edgeType) + "]"
	}
	query := fmt.Sprintf(`
	MATCH (:StoryNode {id: $id})-%s->(n:StoryNode)
	RETURN n ORDER BY r.created_at DESC, id(r) DESC`, rel)
	params := map[string]any{"id": id}
	if limit > 0 {
		query += " LIMIT $limit"
		params["limit"] = limit
	}

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	var nodes []Node
	for result.Next(ctx) {
		nodeVal, _ := result.Record().Get("n")
		if n, ok := nodeVal.(neo4j.Node); ok {
			nodes = append(nodes, toNode(n))
		}
	}
	return nodes, result.Err()
}

// DeleteNode 删除节点及其所有边
func (s *Neo4jGraphStore) DeleteNode(ctx context.Context, id string) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `MATCH (n:StoryNode {id: $id}) DETACH DELETE n`, map[string]any{"id": id})
	if err != nil {
		return err
	}
	summary, err := result.Consume(ctx)
	if err != nil {
		return err
	}
	if summary.Counters().NodesDeleted() == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear 清空所有数据
func (s *Neo4jGraphStore) Clear(ctx context.Context) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.Run(ctx, `MATCH (n:StoryNode) DETACH DELETE n`, nil)
	return err
}

// Close 关闭连接
func (s *Neo4jGraphStore) Close() error {
	return s.driver.Close(context.Background())
}

// toNode 将 Neo4j 节点转换为 Node
func toNode(n neo4j.Node) Node {
	node := Node{}
	node.ID, _ = n.Props["id"].(string)
	node.Label, _ = n.Props["label"].(string)
	if ms, ok := n.Props["created_at"].(int64); ok {
		node.CreatedAt = time.UnixMilli(ms)
	}
	if raw, ok := n.Props["props"].(string); ok && raw != "" && raw != "null" {
		_ = json.Unmarshal([]byte(raw), &node.Properties)
	}
	return node
}

// relationType 关系类型只保留字母、数字和下划线，并转为大写
func relationType(t string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(t) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '-':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "RELATED_TO"
	}
	return b.String()
}

// 编译时接口检查
var _ GraphStore = (*Neo4jGraphStore)(nil)
