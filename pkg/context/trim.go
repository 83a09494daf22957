package context

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Trim 将文本截断到约 allowedTokens 个 Token。
//
// 字符预算为 allowedTokens*CharsPerToken。优先按整行保留：
// 从头累加整行，直到下一行会超出预算为止；若一行都放不下，
// 则按字符硬截断。结果满足预算，因此重复调用是幂等的。
func Trim(text string, allowedTokens int) string {
	if allowedTokens < 1 {
		return ""
	}
	if allowedTokens > math.MaxInt/CharsPerToken {
		return text
	}

	budget := allowedTokens * CharsPerToken
	if utf8.RuneCountInString(text) <= budget {
		return text
	}

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	used := 0

	for _, line := range lines {
		cost := utf8.RuneCountInString(line)
		if len(kept) > 0 {
			cost++ // 换行符
		}
		if used+cost > budget {
			break
		}
		kept = append(kept, line)
		used += cost
	}

	result := strings.Join(kept, "\n")
	if result == "" {
		return sliceRunes(text, budget)
	}
	return result
}

// sliceRunes 返回前 n 个字符，不会切断 UTF-8 编码。
func sliceRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for idx := range s {
		if i == n {
			return s[:idx]
		}
		i++
	}
	return s
}
