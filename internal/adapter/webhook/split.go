package webhook

import "strings"

// SplitMessage 按行把文本切成不超过 max 个字符的片段。
// 单行超过上限时按字符硬切。
func SplitMessage(text string, max int) []string {
	if max <= 0 || runeLen(text) <= max {
		return []string{text}
	}

	var chunks []string
	var current []rune
	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line)
		for len(runes) > max {
			if len(current) > 0 {
				chunks = append(chunks, string(current))
				current = nil
			}
			chunks = append(chunks, string(runes[:max]))
			runes = runes[max:]
		}

		switch {
		case len(current) == 0:
			current = runes
		case len(current)+1+len(runes) > max:
			chunks = append(chunks, string(current))
			current = runes
		default:
			current = append(current, '\n')
			current = append(current, runes...)
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, string(current))
	}
	return chunks
}

func runeLen(s string) int {
	return len([]rune(s))
}
