package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDocumentStore SQLite 文档存储
//
// 所有集合共用一张 documents 表，metadata 以 JSON 文本保存，
// 过滤条件通过 json_extract 访问。
type SQLiteDocumentStore struct {
	db *sql.DB
}

// NewSQLiteDocumentStore 创建 SQLite 文档存储
//
// dbPath 为 ":memory:" 时使用内存数据库（仅单连接可见）。
func NewSQLiteDocumentStore(dbPath string) (*SQLiteDocumentStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("%w: empty sqlite path", ErrInvalidInput)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &SQLiteDocumentStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

// initSchema 初始化表结构
func (s *SQLiteDocumentStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT NOT NULL,
		collection TEXT NOT NULL,
		content TEXT,
		metadata TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(collection, created_at);
	`)
	return err
}

// Put 存储文档
func (s *SQLiteDocumentStore) Put(ctx context.Context, collection string, doc Document) error {
	if doc.ID == "" {
		return ErrInvalidInput
	}

	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now().UnixMilli()
	createdAt := now
	if !doc.CreatedAt.IsZero() {
		createdAt = doc.CreatedAt.UnixMilli()
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO documents (id, collection, content, metadata, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(collection, id) DO UPDATE SET
		content = excluded.content,
		metadata = excluded.metadata,
		updated_at = excluded.updated_at
	`, doc.ID, collection, doc.Content, string(metadata), createdAt, now)
	return err
}

// Get 获取文档
func (s *SQLiteDocumentStore) Get(ctx context.Context, collection string, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content, metadata, created_at, updated_at FROM documents WHERE collection = ? AND id = ?`,
		collection, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete 删除文档
func (s *SQLiteDocumentStore) Delete(ctx context.Context, collection string, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Query 条件查询
func (s *SQLiteDocumentStore) Query(ctx context.Context, collection string, filter Filter, opts ...QueryOption) ([]Document, error) {
	options := defaultQueryOptions(opts)

	where, args, err := buildWhereClause(filter)
	if err != nil {
		return nil, err
	}
	args = append([]any{collection}, args...)

	order := "ASC"
	if options.newestFirst {
		order = "DESC"
	}
	query := fmt.Sprintf(
		"SELECT id, content, metadata, created_at, updated_at FROM documents WHERE collection = ?%s ORDER BY created_at %s, rowid %s",
		where, order, order,
	)
	if options.limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", options.limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *doc)
	}
	return results, rows.Err()
}

// Count 统计数量
func (s *SQLiteDocumentStore) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	where, args, err := buildWhereClause(filter)
	if err != nil {
		return 0, err
	}
	args = append([]any{collection}, args...)

	var count int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE collection = ?"+where, args...).Scan(&count)
	return count, err
}

// Clear 清空集合
func (s *SQLiteDocumentStore) Clear(ctx context.Context, collection string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection)
	return err
}

// Close 关闭连接
func (s *SQLiteDocumentStore) Close() error {
	return s.db.Close()
}

// rowScanner 兼容 *sql.Row 与 *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (*Document, error) {
	var (
		doc                  Document
		content, metadataStr sql.NullString
		createdAt, updatedAt int64
	)
	if err := r.Scan(&doc.ID, &content, &metadataStr, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	doc.Content = content.String
	if metadataStr.Valid && metadataStr.String != "" && metadataStr.String != "null" {
		if err := json.Unmarshal([]byte(metadataStr.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	doc.CreatedAt = time.UnixMilli(createdAt)
	doc.UpdatedAt = time.UnixMilli(updatedAt)
	return &doc, nil
}

// metadataKey 允许出现在 json_extract 路径中的键
var metadataKey = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// buildWhereClause 构建 WHERE 子句（以 " AND " 开头，空条件返回空串）
func buildWhereClause(filter Filter) (string, []any, error) {
	if filter.isEmpty() {
		return "", nil, nil
	}

	if len(filter.And) > 0 {
		var (
			clauses []string
			args    []any
		)
		for _, f := range filter.And {
			clause, clauseArgs, err := buildWhereClause(f)
			if err != nil {
				return "", nil, err
			}
			if clause != "" {
				clauses = append(clauses, strings.TrimPrefix(clause, " AND "))
				args = append(args, clauseArgs...)
			}
		}
		if len(clauses) == 0 {
			return "", nil, nil
		}
		return " AND (" + strings.Join(clauses, " AND ") + ")", args, nil
	}

	column, err := columnName(filter.Field)
	if err != nil {
		return "", nil, err
	}
	value := fmt.Sprint(filter.Value)

	switch filter.Op {
	case "eq", "":
		return fmt.Sprintf(" AND CAST(%s AS TEXT) = ?", column), []any{value}, nil
	case "ne":
		return fmt.Sprintf(" AND (%s IS NULL OR CAST(%s AS TEXT) != ?)", column, column), []any{value}, nil
	case "contains":
		return fmt.Sprintf(" AND LOWER(%s) LIKE ?", column), []any{"%" + strings.ToLower(value) + "%"}, nil
	default:
		return "", nil, fmt.Errorf("%w: filter op %q", ErrInvalidInput, filter.Op)
	}
}

// columnName 获取列名（其余字段映射到 metadata）
func columnName(field string) (string, error) {
	switch field {
	case "id", "content":
		return field, nil
	}
	if !metadataKey.MatchString(field) {
		return "", fmt.Errorf("%w: field %q", ErrInvalidInput, field)
	}
	return fmt.Sprintf("json_extract(metadata, '$.%s')", field), nil
}

// 编译时接口检查
var _ DocumentStore = (*SQLiteDocumentStore)(nil)
