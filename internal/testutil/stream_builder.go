package testutil

import (
	"github.com/DefikitTeam/claude-code-container-sub005/backend"
)

// StreamBuilder provides a fluent helper for constructing message streams in
// tests. Example:
//
//	msgs := NewStreamBuilder().AssistantText("He").AssistantText("llo").Build()
//
// Chain only the messages you need; Feed turns the slice into a closed
// channel suitable for backend.ConsumeStream.
type StreamBuilder struct {
	messages []backend.Message
}

// NewStreamBuilder creates an empty builder.
func NewStreamBuilder() *StreamBuilder { return &StreamBuilder{} }

// AssistantText appends a structured content-block message with one text
// block (chainable).
func (b *StreamBuilder) AssistantText(text string) *StreamBuilder {
	b.messages = append(b.messages, backend.AssistantMessage{
		Blocks: []backend.ContentBlock{{Type: "text", Text: text}},
	})
	return b
}

// Blocks appends a structured content-block message with arbitrary blocks
// (chainable).
func (b *StreamBuilder) Blocks(blocks ...backend.ContentBlock) *StreamBuilder {
	b.messages = append(b.messages, backend.AssistantMessage{Blocks: blocks})
	return b
}

// FlatText appends a flat text-field message (chainable).
func (b *StreamBuilder) FlatText(text string) *StreamBuilder {
	b.messages = append(b.messages, backend.TextMessage{Text: text})
	return b
}

// Result appends a terminal result message (chainable).
func (b *StreamBuilder) Result(text string) *StreamBuilder {
	b.messages = append(b.messages, backend.ResultMessage{Result: text})
	return b
}

// Error appends an error-typed message (chainable).
func (b *StreamBuilder) Error(text string) *StreamBuilder {
	b.messages = append(b.messages, backend.ErrorMessage{ErrText: text})
	return b
}

// Unknown appends an unrecognized message (chainable).
func (b *StreamBuilder) Unknown() *StreamBuilder {
	b.messages = append(b.messages, backend.UnknownMessage{})
	return b
}

// Build returns the accumulated messages.
func (b *StreamBuilder) Build() []backend.Message {
	return append([]backend.Message{}, b.messages...)
}

// Feed returns a closed channel delivering the accumulated messages in order.
func (b *StreamBuilder) Feed() <-chan backend.Message {
	ch := make(chan backend.Message, len(b.messages))
	for _, m := range b.messages {
		ch <- m
	}
	close(ch)
	return ch
}
