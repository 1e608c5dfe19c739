package document

import (
	"strings"
)

// DefaultMaxChunkLength 默认的最大分块长度（字符数，包含单词间的空格）
const DefaultMaxChunkLength = 90

// ChunkPages 将多页文本切分为有序的分块列表
// maxLen <= 0 时使用默认值
func ChunkPages(pages []string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxChunkLength
	}

	var chunks []string
	for _, page := range pages {
		chunks = append(chunks, chunkPage(page, maxLen)...)
	}
	return chunks
}

// chunkPage 对单页文本做贪心的单词窗口切分
// 每个单词的长度按 len(word)+1 计算（包含分隔空格）
func chunkPage(text string, maxLen int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	current := 0

	for i, word := range words {
		wordLen := len(word) + 1

		// 只有窗口非空时才截断，避免产生空块
		if current+wordLen > maxLen && i > start {
			chunks = append(chunks, strings.Join(words[start:i], " "))
			start = i
			current = wordLen
		} else {
			current += wordLen
		}
	}

	if start < len(words) {
		chunks = append(chunks, strings.Join(words[start:], " "))
	}

	return chunks
}
