package backend

import (
	"context"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// Message is a closed tagged union over the heterogeneous shapes backend
// streams emit. Concrete message types implement the unexported isMessage
// marker enabling exhaustive switches with an explicit unrecognized variant.
type Message interface{ isMessage() }

// ContentBlock is one element of a structured content array.
type ContentBlock struct {
	Type string
	Text string
}

// AssistantMessage carries a structured array of content blocks.
type AssistantMessage struct {
	Blocks []ContentBlock
}

func (AssistantMessage) isMessage() {}

// TextMessage carries a flat text field.
type TextMessage struct {
	Text string
}

func (TextMessage) isMessage() {}

// ResultMessage is a terminal message carrying a final result string.
type ResultMessage struct {
	Result string
}

func (ResultMessage) isMessage() {}

// ErrorMessage is a message explicitly typed as an error; it terminates the
// run with the backend's error text.
type ErrorMessage struct {
	ErrText string
}

func (ErrorMessage) isMessage() {}

// RawTextMessage is a bare JSON string treated as text itself.
type RawTextMessage struct {
	Text string
}

func (RawTextMessage) isMessage() {}

// UnknownMessage is the explicit unrecognized variant. It yields empty text
// and never fails the stream.
type UnknownMessage struct {
	Raw string
}

func (UnknownMessage) isMessage() {}

// DecodeMessage maps one raw backend message onto the union. It is total:
// anything it cannot place lands in UnknownMessage. Probing order mirrors
// the extraction strategy: error type, structured content blocks (top level
// or nested under "message"), flat text field, terminal result string, bare
// JSON string.
func DecodeMessage(data []byte) Message {
	if !gjson.ValidBytes(data) {
		return UnknownMessage{Raw: string(data)}
	}
	v := gjson.ParseBytes(data)

	if v.Type == gjson.String {
		return RawTextMessage{Text: v.String()}
	}
	if !v.IsObject() {
		return UnknownMessage{Raw: string(data)}
	}

	if v.Get("type").String() == "error" {
		return ErrorMessage{ErrText: errorText(v)}
	}

	if content := v.Get("content"); content.IsArray() {
		return AssistantMessage{Blocks: decodeBlocks(content)}
	}
	if content := v.Get("message.content"); content.IsArray() {
		return AssistantMessage{Blocks: decodeBlocks(content)}
	}

	if txt := v.Get("text"); txt.Type == gjson.String {
		return TextMessage{Text: txt.String()}
	}

	if res := v.Get("result"); res.Type == gjson.String {
		return ResultMessage{Result: res.String()}
	}

	return UnknownMessage{Raw: string(data)}
}

func decodeBlocks(content gjson.Result) []ContentBlock {
	var blocks []ContentBlock
	content.ForEach(func(_, b gjson.Result) bool {
		blocks = append(blocks, ContentBlock{
			Type: b.Get("type").String(),
			Text: b.Get("text").String(),
		})
		return true
	})
	return blocks
}

func errorText(v gjson.Result) string {
	if msg := v.Get("error.message"); msg.Type == gjson.String && msg.String() != "" {
		return msg.String()
	}
	if msg := v.Get("message"); msg.Type == gjson.String && msg.String() != "" {
		return msg.String()
	}
	if msg := v.Get("error"); msg.Type == gjson.String && msg.String() != "" {
		return msg.String()
	}
	return "backend reported an error"
}

// ExtractText returns the plain text carried by a message. Text blocks are
// concatenated when their type marks them as text and their value is
// non-empty; error and unrecognized messages yield empty text.
func ExtractText(m Message) string {
	switch msg := m.(type) {
	case AssistantMessage:
		var b strings.Builder
		for _, blk := range msg.Blocks {
			if blk.Type == "text" && blk.Text != "" {
				b.WriteString(blk.Text)
			}
		}
		return b.String()
	case TextMessage:
		return msg.Text
	case ResultMessage:
		return msg.Result
	case RawTextMessage:
		return msg.Text
	case ErrorMessage, UnknownMessage:
		return ""
	default:
		return ""
	}
}

// ConsumeStream drains a message sequence, forwarding every non-empty chunk
// to cb in arrival order and accumulating the full text. The cancellation
// signal is checked before each message; once triggered no further messages
// are processed. A message typed as an error terminates the stream with the
// backend's error text. Normal completion returns the accumulated text even
// if empty.
func ConsumeStream(ctx context.Context, messages <-chan Message, cb Callbacks) (RunResult, error) {
	var full strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}
		select {
		case <-ctx.Done():
			return RunResult{}, ctx.Err()
		case m, ok := <-messages:
			if !ok {
				return RunResult{FullText: full.String()}, nil
			}
			if em, isErr := m.(ErrorMessage); isErr {
				return RunResult{}, errors.New(em.ErrText)
			}
			if chunk := ExtractText(m); chunk != "" {
				full.WriteString(chunk)
				if cb.OnDelta != nil {
					cb.OnDelta(StreamDelta{Text: chunk})
				}
			}
		}
	}
}
