package backend_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DefikitTeam/claude-code-container-sub005/backend"
	"github.com/DefikitTeam/claude-code-container-sub005/internal/testutil"
)

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want backend.Message
	}{
		{
			name: "content block array",
			raw:  `{"content":[{"type":"text","text":"He"},{"type":"tool_use","id":"t1"}]}`,
			want: backend.AssistantMessage{Blocks: []backend.ContentBlock{
				{Type: "text", Text: "He"},
				{Type: "tool_use"},
			}},
		},
		{
			name: "nested message content",
			raw:  `{"type":"assistant","message":{"content":[{"type":"text","text":"hi"}]}}`,
			want: backend.AssistantMessage{Blocks: []backend.ContentBlock{{Type: "text", Text: "hi"}}},
		},
		{
			name: "flat text field",
			raw:  `{"text":"plain"}`,
			want: backend.TextMessage{Text: "plain"},
		},
		{
			name: "terminal result",
			raw:  `{"type":"result","subtype":"success","result":"done"}`,
			want: backend.ResultMessage{Result: "done"},
		},
		{
			name: "raw json string",
			raw:  `"just text"`,
			want: backend.RawTextMessage{Text: "just text"},
		},
		{
			name: "typed error with nested message",
			raw:  `{"type":"error","error":{"message":"boom"}}`,
			want: backend.ErrorMessage{ErrText: "boom"},
		},
		{
			name: "typed error with flat message",
			raw:  `{"type":"error","message":"flat boom"}`,
			want: backend.ErrorMessage{ErrText: "flat boom"},
		},
		{
			name: "unrecognized object",
			raw:  `{"type":"system","session_id":"abc"}`,
			want: backend.UnknownMessage{Raw: `{"type":"system","session_id":"abc"}`},
		},
		{
			name: "invalid json",
			raw:  `not json at all`,
			want: backend.UnknownMessage{Raw: `not json at all`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, backend.DecodeMessage([]byte(tt.raw)))
		})
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		msg  backend.Message
		want string
	}{
		{
			name: "concatenates non-empty text blocks only",
			msg: backend.AssistantMessage{Blocks: []backend.ContentBlock{
				{Type: "text", Text: "a"},
				{Type: "tool_use", Text: "ignored"},
				{Type: "text", Text: ""},
				{Type: "text", Text: "b"},
			}},
			want: "ab",
		},
		{name: "flat text", msg: backend.TextMessage{Text: "x"}, want: "x"},
		{name: "result", msg: backend.ResultMessage{Result: "final"}, want: "final"},
		{name: "raw string", msg: backend.RawTextMessage{Text: "raw"}, want: "raw"},
		{name: "error yields nothing", msg: backend.ErrorMessage{ErrText: "boom"}, want: ""},
		{name: "unknown yields nothing", msg: backend.UnknownMessage{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, backend.ExtractText(tt.msg))
		})
	}
}

func TestConsumeStream_DeltasInOrder(t *testing.T) {
	feed := testutil.NewStreamBuilder().AssistantText("He").AssistantText("llo").Feed()

	var deltas []string
	res, err := backend.ConsumeStream(context.Background(), feed, backend.Callbacks{
		OnDelta: func(d backend.StreamDelta) { deltas = append(deltas, d.Text) },
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"He", "llo"}, deltas)
	assert.Equal(t, "Hello", res.FullText)
}

func TestConsumeStream_ErrorMessageTerminates(t *testing.T) {
	feed := testutil.NewStreamBuilder().
		AssistantText("partial").
		Error("boom").
		AssistantText("never delivered").
		Feed()

	var deltas []string
	_, err := backend.ConsumeStream(context.Background(), feed, backend.Callbacks{
		OnDelta: func(d backend.StreamDelta) { deltas = append(deltas, d.Text) },
	})

	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, []string{"partial"}, deltas, "no deltas after the error message")
}

func TestConsumeStream_PreTriggeredCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	feed := testutil.NewStreamBuilder().AssistantText("never").Feed()

	var deltas []string
	_, err := backend.ConsumeStream(ctx, feed, backend.Callbacks{
		OnDelta: func(d backend.StreamDelta) { deltas = append(deltas, d.Text) },
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, deltas)
}

func TestConsumeStream_EmptyStreamReturnsEmptyResult(t *testing.T) {
	feed := testutil.NewStreamBuilder().Unknown().Feed()

	res, err := backend.ConsumeStream(context.Background(), feed, backend.Callbacks{})

	require.NoError(t, err)
	assert.Equal(t, "", res.FullText, "empty accumulation is returned as-is, never substituted")
}

func TestConsumeStream_NilDeltaCallback(t *testing.T) {
	feed := testutil.NewStreamBuilder().FlatText("ok").Feed()

	res, err := backend.ConsumeStream(context.Background(), feed, backend.Callbacks{})

	require.NoError(t, err)
	assert.Equal(t, "ok", res.FullText)
}
