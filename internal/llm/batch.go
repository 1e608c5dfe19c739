package llm

import "strings"

// 批处理默认参数
const (
	DefaultBatchTokenLimit    = 4000 // 单批次估算token上限
	DefaultBatchQueryOverhead = 120  // 每个问题的估算开销
)

// BatchConfig 问题分批配置
type BatchConfig struct {
	TokenLimit    int // 单批次估算token上限
	QueryOverhead int // 每个问题的估算开销
}

// DefaultBatchConfig 返回默认分批配置
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		TokenLimit:    DefaultBatchTokenLimit,
		QueryOverhead: DefaultBatchQueryOverhead,
	}
}

// CountTokens 以空白分隔的单词数近似上下文的token数
func CountTokens(context []string) int {
	return len(strings.Fields(strings.Join(context, " ")))
}

// EstimateBatchCost 估算一个批次的token开销
func EstimateBatchCost(contextTokens, size, overhead int) int {
	return contextTokens + size*overhead
}

// BatchQuestions 贪心地把问题分组，使每批的估算开销不超过上限
// 单个问题本身超限时仍然独占一批；问题顺序保持不变
func BatchQuestions(questions, context []string, cfg BatchConfig) [][]string {
	if cfg.TokenLimit <= 0 {
		cfg.TokenLimit = DefaultBatchTokenLimit
	}
	if cfg.QueryOverhead <= 0 {
		cfg.QueryOverhead = DefaultBatchQueryOverhead
	}

	contextTokens := CountTokens(context)

	var batches [][]string
	var current []string
	for _, q := range questions {
		est := EstimateBatchCost(contextTokens, len(current)+1, cfg.QueryOverhead)
		if est > cfg.TokenLimit && len(current) > 0 {
			batches = append(batches, current)
			current = []string{q}
		} else {
			current = append(current, q)
		}
	}

	if len(current) > 0 {
		batches = append(batches, current)
	}

	return batches
}
