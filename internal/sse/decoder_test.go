package sse

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func collect(t *testing.T, raw string) []string {
	t.Helper()
	var got []string
	d := NewDecoder(zap.NewNop())
	err := d.Decode(context.Background(), strings.NewReader(raw), func(data string) {
		got = append(got, data)
	})
	require.NoError(t, err)
	return got
}

func TestDecode_SingleEvent(t *testing.T) {
	got := collect(t, "event: message\ndata: hello\n\n")
	assert.Equal(t, []string{"hello"}, got)
}

func TestDecode_MultipleEventsInOrder(t *testing.T) {
	got := collect(t, "data: one\n\ndata: two\n\ndata: [DONE]\n\n")
	assert.Equal(t, []string{"one", "two", "[DONE]"}, got)
}

func TestDecode_MultiLineData(t *testing.T) {
	got := collect(t, "data: first\ndata: second\n\n")
	assert.Equal(t, []string{"first\nsecond"}, got)
}

func TestDecode_IgnoresCommentsAndUnknownFields(t *testing.T) {
	got := collect(t, ": keepalive\nid: 7\nretry: 100\ndata: payload\n\n")
	assert.Equal(t, []string{"payload"}, got)
}

func TestDecode_MalformedLineDoesNotAbort(t *testing.T) {
	got := collect(t, "garbage-without-colon\n\ndata: still-here\n\n")
	assert.Equal(t, []string{"still-here"}, got)
}

func TestDecode_CRLFFraming(t *testing.T) {
	got := collect(t, "data: a\r\n\r\ndata: b\r\n\r\n")
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestDecode_TruncatedFrameIsDiscarded(t *testing.T) {
	got := collect(t, "data: complete\n\ndata: cut-off-mid")
	assert.Equal(t, []string{"complete"}, got)
}

func TestDecode_CallbackPanicIsContained(t *testing.T) {
	var got []string
	d := NewDecoder(zap.NewNop())
	err := d.Decode(context.Background(), strings.NewReader("data: boom\n\ndata: fine\n\n"), func(data string) {
		if data == "boom" {
			panic("bad fragment")
		}
		got = append(got, data)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fine"}, got)
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestDecode_ReadErrorTerminates(t *testing.T) {
	d := NewDecoder(zap.NewNop())
	wantErr := errors.New("connection reset")
	err := d.Decode(context.Background(), io.MultiReader(strings.NewReader("data: a\n\n"), &failingReader{err: wantErr}), func(string) {})
	assert.ErrorIs(t, err, wantErr)
}

func TestDecode_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDecoder(zap.NewNop())
	err := d.Decode(ctx, strings.NewReader("data: a\n\n"), func(string) {})
	assert.ErrorIs(t, err, context.Canceled)
}
