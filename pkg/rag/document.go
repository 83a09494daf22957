// Package rag 提供基于关键词重叠的设定检索
package rag

import (
	"strings"
)

// Document 一条设定片段
type Document struct {
	// ID 文档唯一标识
	ID string `json:"id" yaml:"id"`
	// Title 标题，可为空
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	// Content 文档内容
	Content string `json:"content" yaml:"content"`
	// Source 来源（文件路径、集合名等）
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
	// Tags 标签，参与打分
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Text 返回参与打分的全部文本
func (d Document) Text() string {
	parts := make([]string, 0, 2+len(d.Tags))
	if d.Title != "" {
		parts = append(parts, d.Title)
	}
	parts = append(parts, d.Content)
	parts = append(parts, d.Tags...)
	return strings.Join(parts, " ")
}

// Snippet 返回单行展示文本
func (d Document) Snippet() string {
	content := strings.Join(strings.Fields(d.Content), " ")
	if d.Title == "" {
		return content
	}
	return d.Title + ": " + content
}

// Hit 检索命中
type Hit struct {
	Document Document `json:"document"`
	// Score 查询与文档共有的词数
	Score int `json:"score"`
}

// FormatHits 把命中渲染为项目符号列表，每条一行
func FormatHits(hits []Hit) string {
	if len(hits) == 0 {
		return ""
	}
	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		lines = append(lines, "- "+h.Document.Snippet())
	}
	return strings.Join(lines, "\n")
}
