package memory

import (
	"strings"
	"time"
)

// NPC 非玩家角色
type NPC struct {
	// ID 唯一标识
	ID string `json:"id" yaml:"id"`
	// Name 显示名
	Name string `json:"name" yaml:"name"`
	// Aliases 别名，同样参与提及匹配
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	// Persona 人物设定
	Persona string `json:"persona,omitempty" yaml:"persona,omitempty"`
}

// Names 返回名称和所有非空别名
func (n NPC) Names() []string {
	names := make([]string, 0, 1+len(n.Aliases))
	if s := strings.TrimSpace(n.Name); s != "" {
		names = append(names, s)
	}
	for _, a := range n.Aliases {
		if s := strings.TrimSpace(a); s != "" {
			names = append(names, s)
		}
	}
	return names
}

// Validate 检查 ID 和名称
func (n NPC) Validate() error {
	if strings.TrimSpace(n.ID) == "" || strings.TrimSpace(n.Name) == "" {
		return ErrInvalidInput
	}
	return nil
}

// Fact 一条关于 NPC 的事实
type Fact struct {
	ID        string    `json:"id"`
	NPCID     string    `json:"npc_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile NPC 渲染所需的全部信息
type Profile struct {
	NPC     NPC    `json:"npc"`
	Summary string `json:"summary,omitempty"`
	Facts   []Fact `json:"facts,omitempty"`
}

// Render 把档案渲染为多行文本：设定、摘要、事实各占一行
func (p *Profile) Render() string {
	var b strings.Builder
	b.WriteString(p.NPC.Name)
	if p.NPC.Persona != "" {
		b.WriteString(": ")
		b.WriteString(p.NPC.Persona)
	}
	if p.Summary != "" {
		b.WriteString("\n  Memory: ")
		b.WriteString(p.Summary)
	}
	for _, f := range p.Facts {
		b.WriteString("\n  - ")
		b.WriteString(f.Text)
	}
	return b.String()
}

func joinAliases(aliases []string) string {
	return strings.Join(aliases, ",")
}

func splitAliases(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
