// Package store 提供 NPC 事实、滚动摘要和运行日志的存储后端。
//
// DocumentStore 保存按集合划分的文档（内存 / SQLite），
// GraphStore 保存节点与有向边（内存 / Neo4j）。
package store

import (
	"context"
	"time"
)

// DocumentStore 文档存储接口
type DocumentStore interface {
	// Put 存储文档（按 collection + id 覆盖写入，保留首次创建时间）
	Put(ctx context.Context, collection string, doc Document) error

	// Get 获取文档，不存在时返回 ErrNotFound
	Get(ctx context.Context, collection string, id string) (*Document, error)

	// Delete 删除文档
	Delete(ctx context.Context, collection string, id string) error

	// Query 条件查询
	Query(ctx context.Context, collection string, filter Filter, opts ...QueryOption) ([]Document, error)

	// Count 统计数量
	Count(ctx context.Context, collection string, filter Filter) (int, error)

	// Clear 清空集合
	Clear(ctx context.Context, collection string) error

	// Close 关闭连接
	Close() error
}

// Document 文档结构
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Filter 查询过滤条件
//
// Field 可以是 id、content，或 Metadata 中的键。零值 Filter 匹配全部文档。
type Filter struct {
	// Field 字段名
	Field string
	// Op 操作符: eq, ne, contains
	Op string
	// Value 值
	Value any
	// And 与条件
	And []Filter
}

// Eq 创建等值过滤条件
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: "eq", Value: value}
}

// isEmpty 是否为匹配全部的空条件
func (f Filter) isEmpty() bool {
	return f.Field == "" && len(f.And) == 0
}

// QueryOption 查询选项
type QueryOption func(*queryOptions)

type queryOptions struct {
	limit int
	// newestFirst 按创建时间倒序；默认正序
	newestFirst bool
}

func defaultQueryOptions(opts []QueryOption) *queryOptions {
	o := &queryOptions{limit: 100}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithQueryLimit 设置返回数量限制，<= 0 表示不限制
func WithQueryLimit(limit int) QueryOption {
	return func(o *queryOptions) {
		o.limit = limit
	}
}

// WithNewestFirst 按创建时间倒序返回
func WithNewestFirst() QueryOption {
	return func(o *queryOptions) {
		o.newestFirst = true
	}
}

// GraphStore 图存储接口
type GraphStore interface {
	// UpsertNode 添加或更新节点
	UpsertNode(ctx context.Context, node Node) error

	// GetNode 获取节点，不存在时返回 ErrNotFound
	GetNode(ctx context.Context, id string) (*Node, error)

	// AddEdge 添加 From -> To 的有向边，两端节点必须已存在
	AddEdge(ctx context.Context, edge Edge) error

	// Neighbors 返回 id 经 edgeType 边指向的节点，按边的创建时间倒序
	Neighbors(ctx context.Context, id string, edgeType string, limit int) ([]Node, error)

	// DeleteNode 删除节点及其所有边
	DeleteNode(ctx context.Context, id string) error

	// Clear 清空所有数据
	Clear(ctx context.Context) error

	// Close 关闭连接
	Close() error
}

// Node 图节点
type Node struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Edge 有向边
type Edge struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// StoreType 存储类型
type StoreType string

const (
	// StoreTypeMemory 内存存储
	StoreTypeMemory StoreType = "memory"
	// StoreTypeSQLite SQLite 存储
	StoreTypeSQLite StoreType = "sqlite"
	// StoreTypeNeo4j Neo4j 存储
	StoreTypeNeo4j StoreType = "neo4j"
)

// Config 存储配置
type Config struct {
	// Documents 文档存储类型（memory, sqlite）
	Documents StoreType `koanf:"documents" yaml:"documents" json:"documents"`
	// Graph 图存储类型（memory, neo4j），为空表示不使用图存储
	Graph StoreType `koanf:"graph" yaml:"graph" json:"graph"`

	// SQLitePath SQLite 数据库路径
	SQLitePath string `koanf:"sqlite_path" yaml:"sqlite_path" json:"sqlite_path,omitempty"`

	// Neo4j 连接配置
	Neo4jURI      string `koanf:"neo4j_uri" yaml:"neo4j_uri" json:"neo4j_uri,omitempty"`
	Neo4jUsername string `koanf:"neo4j_username" yaml:"neo4j_username" json:"neo4j_username,omitempty"`
	Neo4jPassword string `koanf:"neo4j_password" yaml:"neo4j_password" json:"neo4j_password,omitempty"`
}

// DefaultConfig 返回默认配置（内存存储）
func DefaultConfig() Config {
	return Config{
		Documents:  StoreTypeMemory,
		SQLitePath: "storyctx.db",
	}
}
