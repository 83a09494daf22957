package store

import "fmt"

// NewDocumentStore 根据配置创建文档存储
func NewDocumentStore(cfg Config) (DocumentStore, error) {
	switch cfg.Documents {
	case StoreTypeSQLite:
		return NewSQLiteDocumentStore(cfg.SQLitePath)
	case StoreTypeMemory, "":
		return NewMemoryDocumentStore(), nil
	default:
		return nil, fmt.Errorf("%w: documents=%s", ErrUnsupportedStore, cfg.Documents)
	}
}

// NewGraphStore 根据配置创建图存储
//
// cfg.Graph 为空时返回 nil, nil。
func NewGraphStore(cfg Config) (GraphStore, error) {
	switch cfg.Graph {
	case "":
		return nil, nil
	case StoreTypeNeo4j:
		return NewNeo4jGraphStore(Neo4jConfig{
			URI:      cfg.Neo4jURI,
			Username: cfg.Neo4jUsername,
			Password: cfg.Neo4jPassword,
		})
	case StoreTypeMemory:
		return NewMemoryGraphStore(), nil
	default:
		return nil, fmt.Errorf("%w: graph=%s", ErrUnsupportedStore, cfg.Graph)
	}
}
