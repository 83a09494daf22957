package memory

import (
	"regexp"
	"strings"
	"sync"
)

// WordMatcher 按整词、大小写不敏感的方式匹配名称
//
// 词边界按 Unicode 字母和数字判断，"Ana" 不会匹配 "Anatole"。
type WordMatcher struct {
	patterns sync.Map // name -> *regexp.Regexp
}

// NewWordMatcher 创建 WordMatcher
func NewWordMatcher() *WordMatcher {
	return &WordMatcher{}
}

// Matches 实现 NameMatcher
func (m *WordMatcher) Matches(text string, candidates []NPC) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var ids []string
	seen := make(map[string]bool)
	for _, npc := range candidates {
		if seen[npc.ID] {
			continue
		}
		for _, name := range npc.Names() {
			if m.pattern(name).MatchString(text) {
				seen[npc.ID] = true
				ids = append(ids, npc.ID)
				break
			}
		}
	}
	return ids
}

func (m *WordMatcher) pattern(name string) *regexp.Regexp {
	if re, ok := m.patterns.Load(name); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(name) + `(?:$|[^\p{L}\p{N}_])`)
	actual, _ := m.patterns.LoadOrStore(name, re)
	return actual.(*regexp.Regexp)
}

// MatcherFunc 适配普通函数为 NameMatcher
type MatcherFunc func(text string, candidates []NPC) []string

// Matches 实现 NameMatcher
func (f MatcherFunc) Matches(text string, candidates []NPC) []string {
	return f(text, candidates)
}

// 编译时接口检查
var (
	_ NameMatcher = (*WordMatcher)(nil)
	_ NameMatcher = MatcherFunc(nil)
)
