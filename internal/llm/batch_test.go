package llm

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchQuestions(t *testing.T) {
	t.Run("small context keeps one batch", func(t *testing.T) {
		// 100个单词的上下文，3个问题开销 100+3*120 远小于4000
		context := []string{strings.Repeat("word ", 100)}
		batches := BatchQuestions([]string{"Q1", "Q2", "Q3"}, context, DefaultBatchConfig())
		assert.Equal(t, [][]string{{"Q1", "Q2", "Q3"}}, batches)
	})

	t.Run("splits when estimate exceeds limit", func(t *testing.T) {
		questions := make([]string, 40)
		for i := range questions {
			questions[i] = fmt.Sprintf("Q%d", i+1)
		}
		// 0个上下文token时每批最多 4000/120 = 33 个问题
		batches := BatchQuestions(questions, nil, DefaultBatchConfig())
		require.Len(t, batches, 2)
		assert.Len(t, batches[0], 33)
		assert.Len(t, batches[1], 7)
	})

	t.Run("oversized single question still gets a batch", func(t *testing.T) {
		context := []string{strings.Repeat("clause ", 5000)}
		batches := BatchQuestions([]string{"a", "b", "c"}, context, DefaultBatchConfig())
		assert.Equal(t, [][]string{{"a"}, {"b"}, {"c"}}, batches)
	})

	t.Run("preserves order and coverage", func(t *testing.T) {
		questions := []string{"a", "b", "c", "d", "e", "f", "g"}
		batches := BatchQuestions(questions, []string{"x y z"}, BatchConfig{TokenLimit: 250, QueryOverhead: 100})

		var flat []string
		for _, b := range batches {
			assert.NotEmpty(t, b)
			flat = append(flat, b...)
		}
		assert.Equal(t, questions, flat)
		// 3 + 2*100 = 203 可以，3 + 3*100 = 303 超限
		assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e", "f"}, {"g"}}, batches)
	})

	t.Run("no questions", func(t *testing.T) {
		assert.Empty(t, BatchQuestions(nil, []string{"ctx"}, DefaultBatchConfig()))
	})
}

func TestCountTokens(t *testing.T) {
	assert.Equal(t, 0, CountTokens(nil))
	assert.Equal(t, 5, CountTokens([]string{"one two", " three\nfour ", "five"}))
	assert.Equal(t, 340, EstimateBatchCost(100, 2, 120))
}
