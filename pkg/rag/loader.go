package rag

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/easyops/storyctx/pkg/memory/store"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DocumentLoader 文档加载器接口
type DocumentLoader interface {
	// Load 加载文档
	Load(ctx context.Context) ([]Document, error)
	// SupportedExtensions 支持的文件扩展名
	SupportedExtensions() []string
}

// TextLoader 文本加载器，按段落分块
type TextLoader struct {
	source  string
	reader  io.Reader
	chunker DocumentChunker
}

// NewTextLoader 从 io.Reader 创建文本加载器
func NewTextLoader(source string, reader io.Reader) *TextLoader {
	return &TextLoader{
		source:  source,
		reader:  reader,
		chunker: NewParagraphChunker(0),
	}
}

// Load 加载文档
func (l *TextLoader) Load(ctx context.Context) ([]Document, error) {
	content, err := io.ReadAll(l.reader)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSuffix(filepath.Base(l.source), filepath.Ext(l.source))
	if id == "" || id == "." {
		id = generateID()
	}
	return l.chunker.Chunk(Document{
		ID:      id,
		Content: string(content),
		Source:  l.source,
	}), nil
}

// SupportedExtensions 支持的文件扩展名
func (l *TextLoader) SupportedExtensions() []string {
	return []string{".txt", ".md", ".text"}
}

// YAMLLoader 从 YAML/JSON 列表加载文档，每一项即一个文档
type YAMLLoader struct {
	source string
	reader io.Reader
}

// NewYAMLLoader 创建 YAML 加载器
func NewYAMLLoader(source string, reader io.Reader) *YAMLLoader {
	return &YAMLLoader{source: source, reader: reader}
}

// Load 加载文档，缺少 ID 的文档使用 <来源>:<序号>
func (l *YAMLLoader) Load(ctx context.Context) ([]Document, error) {
	data, err := io.ReadAll(l.reader)
	if err != nil {
		return nil, err
	}

	var docs []Document
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, l.source, err)
	}
	out := docs[:0]
	for i, d := range docs {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		if d.ID == "" {
			d.ID = fmt.Sprintf("%s:%d", filepath.Base(l.source), i)
		}
		if d.Source == "" {
			d.Source = l.source
		}
		out = append(out, d)
	}
	return out, nil
}

// SupportedExtensions 支持的文件扩展名
func (l *YAMLLoader) SupportedExtensions() []string {
	return []string{".yaml", ".yml", ".json"}
}

// StringLoader 字符串加载器（用于直接加载字符串内容）
type StringLoader struct {
	content string
	title   string
}

// NewStringLoader 创建字符串加载器
func NewStringLoader(title, content string) *StringLoader {
	return &StringLoader{
		content: content,
		title:   title,
	}
}

// Load 加载文档
func (l *StringLoader) Load(ctx context.Context) ([]Document, error) {
	return []Document{{
		ID:      generateID(),
		Title:   l.title,
		Content: l.content,
	}}, nil
}

// SupportedExtensions 支持的文件扩展名
func (l *StringLoader) SupportedExtensions() []string {
	return []string{}
}

// PathLoader 从文件或目录加载文档，按扩展名选择解析方式
type PathLoader struct {
	path string
}

// NewPathLoader 创建路径加载器
func NewPathLoader(path string) *PathLoader {
	return &PathLoader{path: path}
}

// Load 加载文档，目录会被递归遍历，不支持的文件被跳过
func (l *PathLoader) Load(ctx context.Context) ([]Document, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return loadFile(ctx, l.path)
	}

	var docs []Document
	err = filepath.WalkDir(l.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !l.supports(path) {
			return nil
		}
		loaded, err := loadFile(ctx, path)
		if err != nil {
			return err
		}
		docs = append(docs, loaded...)
		return nil
	})
	return docs, err
}

// SupportedExtensions 支持的文件扩展名
func (l *PathLoader) SupportedExtensions() []string {
	return []string{".txt", ".md", ".text", ".yaml", ".yml", ".json"}
}

func (l *PathLoader) supports(path string) bool {
	return slices.Contains(l.SupportedExtensions(), strings.ToLower(filepath.Ext(path)))
}

func loadFile(ctx context.Context, path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return NewYAMLLoader(path, f).Load(ctx)
	default:
		return NewTextLoader(path, f).Load(ctx)
	}
}

// StoreLoader 从文档存储的集合加载设定
type StoreLoader struct {
	store      store.DocumentStore
	collection string
}

// NewStoreLoader 创建存储加载器
func NewStoreLoader(s store.DocumentStore, collection string) *StoreLoader {
	return &StoreLoader{store: s, collection: collection}
}

// Load 加载文档，title 与 tags 取自元数据
func (l *StoreLoader) Load(ctx context.Context) ([]Document, error) {
	stored, err := l.store.Query(ctx, l.collection, store.Filter{}, store.WithQueryLimit(-1))
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(stored))
	for _, sd := range stored {
		d := Document{ID: sd.ID, Content: sd.Content, Source: l.collection}
		if title, ok := sd.Metadata["title"].(string); ok {
			d.Title = title
		}
		d.Tags = stringList(sd.Metadata["tags"])
		docs = append(docs, d)
	}
	return docs, nil
}

// SupportedExtensions 支持的文件扩展名
func (l *StoreLoader) SupportedExtensions() []string {
	return []string{}
}

// SaveDocuments 把文档写入文档存储的集合
func SaveDocuments(ctx context.Context, s store.DocumentStore, collection string, docs []Document) error {
	for _, d := range docs {
		meta := map[string]any{"source": d.Source}
		if d.Title != "" {
			meta["title"] = d.Title
		}
		if len(d.Tags) > 0 {
			meta["tags"] = d.Tags
		}
		if err := s.Put(ctx, collection, store.Document{ID: d.ID, Content: d.Content, Metadata: meta}); err != nil {
			return fmt.Errorf("save %s: %w", d.ID, err)
		}
	}
	return nil
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// MultiLoader 多文档加载器
type MultiLoader struct {
	loaders []DocumentLoader
}

// NewMultiLoader 创建多文档加载器
func NewMultiLoader(loaders ...DocumentLoader) *MultiLoader {
	return &MultiLoader{loaders: loaders}
}

// Load 加载所有文档
func (l *MultiLoader) Load(ctx context.Context) ([]Document, error) {
	var docs []Document

	for _, loader := range l.loaders {
		loadedDocs, err := loader.Load(ctx)
		if err != nil {
			return nil, err
		}
		docs = append(docs, loadedDocs...)
	}

	return docs, nil
}

// SupportedExtensions 支持的文件扩展名
func (l *MultiLoader) SupportedExtensions() []string {
	extSet := make(map[string]struct{})
	for _, loader := range l.loaders {
		for _, ext := range loader.SupportedExtensions() {
			extSet[ext] = struct{}{}
		}
	}

	exts := make([]string, 0, len(extSet))
	for ext := range extSet {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// generateID 生成文档 ID
func generateID() string {
	return uuid.New().String()
}

// compile-time interface check
var _ DocumentLoader = (*TextLoader)(nil)
var _ DocumentLoader = (*YAMLLoader)(nil)
var _ DocumentLoader = (*StringLoader)(nil)
var _ DocumentLoader = (*PathLoader)(nil)
var _ DocumentLoader = (*StoreLoader)(nil)
var _ DocumentLoader = (*MultiLoader)(nil)
