package manifest

import "strings"

// Digest 把清单渲染为多行摘要，每个分类一行，按 种族、势力、地貌、物价、术语 排列。
//
// 每行独立成句，裁剪时按整行丢弃靠后的分类。
func Digest(m *Manifest) string {
	if m.IsEmpty() {
		return ""
	}

	var lines []string
	if m.Name != "" {
		lines = append(lines, "World: "+m.Name)
	}
	if line := entryLine("Races", m.Races); line != "" {
		lines = append(lines, line)
	}
	if line := entryLine("Factions", m.Factions); line != "" {
		lines = append(lines, line)
	}
	if line := entryLine("Biomes", m.Biomes); line != "" {
		lines = append(lines, line)
	}
	if len(m.Prices) > 0 {
		parts := make([]string, 0, len(m.Prices))
		for _, p := range m.Prices {
			parts = append(parts, strings.TrimSpace(p.Item+" "+p.Cost))
		}
		lines = append(lines, "Prices: "+strings.Join(parts, ", "))
	}
	if len(m.Terms) > 0 {
		parts := make([]string, 0, len(m.Terms))
		for _, t := range m.Terms {
			if t.Meaning == "" {
				parts = append(parts, t.Term)
				continue
			}
			parts = append(parts, t.Term+" = "+t.Meaning)
		}
		lines = append(lines, "Terms: "+strings.Join(parts, "; "))
	}
	return strings.Join(lines, "\n")
}

func entryLine(label string, entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Summary == "" {
			parts = append(parts, e.Name)
			continue
		}
		parts = append(parts, e.Name+" ("+e.Summary+")")
	}
	return label + ": " + strings.Join(parts, "; ")
}
