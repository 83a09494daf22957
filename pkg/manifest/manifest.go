// Package manifest 加载世界清单并渲染为简要的设定摘要
package manifest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Entry 清单中的一条设定（种族、势力、地貌）
type Entry struct {
	Name    string `yaml:"name" json:"name"`
	Summary string `yaml:"summary,omitempty" json:"summary,omitempty"`
}

// Price 物价
type Price struct {
	Item string `yaml:"item" json:"item"`
	Cost string `yaml:"cost" json:"cost"`
}

// Term 术语
type Term struct {
	Term    string `yaml:"term" json:"term"`
	Meaning string `yaml:"meaning" json:"meaning"`
}

// Manifest 世界清单
type Manifest struct {
	Name     string  `yaml:"name" json:"name"`
	Version  string  `yaml:"version,omitempty" json:"version,omitempty"`
	Races    []Entry `yaml:"races,omitempty" json:"races,omitempty"`
	Factions []Entry `yaml:"factions,omitempty" json:"factions,omitempty"`
	Biomes   []Entry `yaml:"biomes,omitempty" json:"biomes,omitempty"`
	Prices   []Price `yaml:"prices,omitempty" json:"prices,omitempty"`
	Terms    []Term  `yaml:"terms,omitempty" json:"terms,omitempty"`
}

// IsEmpty 清单是否没有任何设定
func (m *Manifest) IsEmpty() bool {
	return m == nil ||
		len(m.Races) == 0 && len(m.Factions) == 0 && len(m.Biomes) == 0 &&
			len(m.Prices) == 0 && len(m.Terms) == 0
}

// Parse 解析 YAML 或 JSON 格式的清单
//
// JSON 清单允许注释和尾随逗号（JSONC）。
func Parse(data []byte) (*Manifest, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		data = jsonc.ToJSON(trimmed)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate 检查条目名称非空
func (m *Manifest) Validate() error {
	for section, entries := range map[string][]Entry{
		"races":    m.Races,
		"factions": m.Factions,
		"biomes":   m.Biomes,
	} {
		for i, e := range entries {
			if strings.TrimSpace(e.Name) == "" {
				return fmt.Errorf("%w: %s[%d] has no name", ErrInvalidManifest, section, i)
			}
		}
	}
	for i, p := range m.Prices {
		if strings.TrimSpace(p.Item) == "" {
			return fmt.Errorf("%w: prices[%d] has no item", ErrInvalidManifest, i)
		}
	}
	for i, t := range m.Terms {
		if strings.TrimSpace(t.Term) == "" {
			return fmt.Errorf("%w: terms[%d] is empty", ErrInvalidManifest, i)
		}
	}
	return nil
}
