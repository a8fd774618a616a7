package llm

import (
	"sync"
	"unicode/utf8"

	"github.com/fumbl3b/harryAi/internal/models"
	"github.com/pkoukk/tiktoken-go"
)

// Chat-format framing cost, per message and per reply.
const (
	tokensPerMessage = 4
	tokensPerReply   = 2
)

// TokenCounter estimates the prompt size of a history. Models without a known
// encoding fall back to roughly four runes per token.
type TokenCounter struct {
	model string
	once  sync.Once
	enc   *tiktoken.Tiktoken
}

func NewTokenCounter(model string) *TokenCounter {
	return &TokenCounter{model: model}
}

func (c *TokenCounter) Count(history []models.Message) int {
	c.once.Do(func() {
		if enc, err := tiktoken.EncodingForModel(c.model); err == nil {
			c.enc = enc
		}
	})

	total := tokensPerReply
	for _, msg := range history {
		total += tokensPerMessage
		if c.enc != nil {
			total += len(c.enc.Encode(msg.Content, nil, nil))
		} else {
			total += (utf8.RuneCountInString(msg.Content) + 3) / 4
		}
	}
	return total
}
