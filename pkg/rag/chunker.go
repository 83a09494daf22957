package rag

import (
	"fmt"
	"strings"
)

// DocumentChunker 文档分块器接口
type DocumentChunker interface {
	// Chunk 将文档分割成块
	Chunk(doc Document) []Document
}

// ParagraphChunker 按空行分段，标题行（# 开头）作为后续段落的标题
//
// 超过 MaxChars 的段落再按行切分，保证每个片段都是完整的行。
type ParagraphChunker struct {
	// MaxChars 单个片段的最大字符数，0 表示不限制
	MaxChars int
}

// NewParagraphChunker 创建段落分块器
func NewParagraphChunker(maxChars int) *ParagraphChunker {
	return &ParagraphChunker{MaxChars: maxChars}
}

// Chunk 将文档分割成块，块 ID 为 <文档 ID>#<序号>
func (c *ParagraphChunker) Chunk(doc Document) []Document {
	var (
		out   []Document
		title = doc.Title
		para  []string
	)

	flush := func() {
		text := strings.TrimSpace(strings.Join(para, "\n"))
		para = para[:0]
		if text == "" {
			return
		}
		for _, piece := range c.split(text) {
			out = append(out, Document{
				ID:      fmt.Sprintf("%s#%d", doc.ID, len(out)),
				Title:   title,
				Content: piece,
				Source:  doc.Source,
				Tags:    doc.Tags,
			})
		}
	}

	for _, line := range strings.Split(doc.Content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "#"):
			flush()
			title = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		case trimmed == "":
			flush()
		default:
			para = append(para, trimmed)
		}
	}
	flush()
	return out
}

// split 按行把过长的段落切成不超过 MaxChars 的片段
func (c *ParagraphChunker) split(text string) []string {
	if c.MaxChars <= 0 || len([]rune(text)) <= c.MaxChars {
		return []string{text}
	}

	var (
		pieces []string
		cur    []string
		size   int
	)
	for _, line := range strings.Split(text, "\n") {
		n := len([]rune(line))
		if len(cur) > 0 && size+1+n > c.MaxChars {
			pieces = append(pieces, strings.Join(cur, "\n"))
			cur, size = nil, 0
		}
		if len(cur) > 0 {
			size++
		}
		cur = append(cur, line)
		size += n
	}
	if len(cur) > 0 {
		pieces = append(pieces, strings.Join(cur, "\n"))
	}
	return pieces
}

// compile-time interface check
var _ DocumentChunker = (*ParagraphChunker)(nil)
