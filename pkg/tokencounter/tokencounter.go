// Package tokencounter implements the TOKEN_COUNTER registry kind: pluggable
// token-counting backends an op can consult to budget prompts before calling
// an LLM. Grounded on tiktoken-go, the same encoderrepo's token-budgeting
// helper used.
package tokencounter

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/flowllm-go/flowllm/pkg/flowctx"
)

// Provider counts tokens for a piece of text or a conversation, per the
// TOKEN_COUNTER registry kind.
type Provider interface {
	Name() string
	CountText(text string) (int, error)
	CountMessages(messages []flowctx.Message) (int, error)
}

// TiktokenCounter wraps a cached tiktoken encoding. Token counting is a
// shared utility all LLM ops consult; it implements no LLM or
// vector-store semantics of its own.
type TiktokenCounter struct {
	encodingName string

	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter builds a counter for the named encoding (e.g.
// "cl100k_base", "o200k_base"). The encoding is resolved lazily on first
// use so construction never touches the network.
func NewTiktokenCounter(encodingName string) *TiktokenCounter {
	if encodingName == "" {
		encodingName = "cl100k_base"
	}
	return &TiktokenCounter{encodingName: encodingName}
}

func (c *TiktokenCounter) Name() string { return "tiktoken:" + c.encodingName }

func (c *TiktokenCounter) encoding() (*tiktoken.Tiktoken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enc != nil {
		return c.enc, nil
	}
	enc, err := tiktoken.GetEncoding(c.encodingName)
	if err != nil {
		return nil, fmt.Errorf("tiktoken: load encoding %q: %w", c.encodingName, err)
	}
	c.enc = enc
	return enc, nil
}

// CountText returns the number of tokens text encodes to.
func (c *TiktokenCounter) CountText(text string) (int, error) {
	enc, err := c.encoding()
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountMessages sums the per-message token count plus a small fixed
// per-message overhead for role/field framing, a common heuristic for
// chat-formatted prompts.
func (c *TiktokenCounter) CountMessages(messages []flowctx.Message) (int, error) {
	enc, err := c.encoding()
	if err != nil {
		return 0, err
	}
	const perMessageOverhead = 4
	total := 0
	for _, m := range messages {
		total += perMessageOverhead
		total += len(enc.Encode(m.Role, nil, nil))
		total += len(enc.Encode(m.Content, nil, nil))
	}
	return total, nil
}

// ForModel resolves the conventional encoding for a model name (falls back
// to cl100k_base when the model is unrecognised).
func ForModel(model string) *TiktokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil || enc == nil {
		return NewTiktokenCounter("cl100k_base")
	}
	return &TiktokenCounter{encodingName: model, enc: enc}
}
