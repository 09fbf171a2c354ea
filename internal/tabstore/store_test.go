package tabstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tabbridge/tabbridge/internal/common/cnst"
	"github.com/tabbridge/tabbridge/internal/protocol"
)

type fakeConn struct {
	sent   []*protocol.Message
	sendFn func(*protocol.Message) error
}

func (c *fakeConn) Send(_ context.Context, msg *protocol.Message) error {
	if c.sendFn != nil {
		if err := c.sendFn(msg); err != nil {
			return err
		}
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Close(context.Context) error { return nil }

func answer(id, text string) *protocol.Message {
	return &protocol.Message{
		Message: &protocol.Body{
			ID:      id,
			Content: protocol.Content{Parts: []string{text}},
		},
	}
}

func TestStore_AttachCreatesLazily(t *testing.T) {
	s := NewStore(zap.NewNop())

	_, err := s.Connection("t1")
	assert.ErrorIs(t, err, cnst.ErrTabNotFound)

	conn := &fakeConn{}
	s.Attach("t1", conn)
	got, err := s.Connection("t1")
	require.NoError(t, err)
	assert.Same(t, conn, got.(*fakeConn))
}

func TestStore_ReconnectReplacesConnectionOnly(t *testing.T) {
	s := NewStore(zap.NewNop())
	s.Attach("t1", &fakeConn{})
	s.SetActive("t1", true)
	s.Upsert("t1", answer("a", "hello"))

	fresh := &fakeConn{}
	s.Attach("t1", fresh)

	got, err := s.Connection("t1")
	require.NoError(t, err)
	assert.Same(t, fresh, got.(*fakeConn))
	assert.True(t, s.Active("t1"))
	assert.Len(t, s.Messages("t1"), 1)
}

func TestStore_UpsertRemovesTrailingThinking(t *testing.T) {
	s := NewStore(zap.NewNop())
	s.Upsert("t1", protocol.UserEcho("u1", "hi"))
	s.Upsert("t1", protocol.Thinking("a1"))
	s.Upsert("t1", answer("a1", "first fragment"))

	msgs := s.Messages("t1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "u1", msgs[0].ID())
	assert.Equal(t, []string{"first fragment"}, msgs[1].Message.Content.Parts)

	// never two consecutive thinking entries
	s.Upsert("t1", protocol.Thinking("a2"))
	s.Upsert("t1", protocol.Thinking("a3"))
	msgs = s.Messages("t1")
	require.Len(t, msgs, 3)
	assert.Equal(t, "a3", msgs[2].ID())
	assert.False(t, msgs[1].IsThinking())
}

func TestStore_UpsertMergesByIDInPlace(t *testing.T) {
	s := NewStore(zap.NewNop())
	s.Upsert("t1", answer("a", "one"))
	s.Upsert("t1", answer("b", "two"))
	s.Upsert("t1", answer("c", "three"))

	s.Upsert("t1", answer("b", "two, revised"))

	msgs := s.Messages("t1")
	require.Len(t, msgs, 3)
	assert.Equal(t, "a", msgs[0].ID())
	assert.Equal(t, "b", msgs[1].ID())
	assert.Equal(t, []string{"two, revised"}, msgs[1].Message.Content.Parts)
	assert.Equal(t, "c", msgs[2].ID())
}

func TestStore_UpsertAppendsWhenNoIDMatches(t *testing.T) {
	s := NewStore(zap.NewNop())
	s.Upsert("t1", answer("a", "one"))
	s.Upsert("t1", answer("b", "two"))

	msgs := s.Messages("t1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", msgs[1].ID())
}

func TestStore_HistoryCap(t *testing.T) {
	s := NewStore(zap.NewNop())
	for i := 0; i < 25; i++ {
		s.Upsert("t1", answer(fmt.Sprintf("m%d", i), "x"))
	}

	msgs := s.Messages("t1")
	require.Len(t, msgs, HistoryLimit)
	assert.Equal(t, "m15", msgs[0].ID())
	assert.Equal(t, "m24", msgs[len(msgs)-1].ID())
}

func TestStore_PerTabIsolation(t *testing.T) {
	s := NewStore(zap.NewNop())
	s.Upsert("t1", answer("a", "one"))
	s.Upsert("t2", answer("a", "other tab"))

	assert.Len(t, s.Messages("t1"), 1)
	assert.Len(t, s.Messages("t2"), 1)
	assert.Equal(t, []string{"one"}, s.Messages("t1")[0].Message.Content.Parts)
	assert.Equal(t, []string{"other tab"}, s.Messages("t2")[0].Message.Content.Parts)
}

func TestStore_Replay(t *testing.T) {
	s := NewStore(zap.NewNop())
	s.Upsert("t1", protocol.UserEcho("u1", "hi"))
	s.Upsert("t1", answer("a1", "answer"))

	conn := &fakeConn{}
	require.NoError(t, s.Replay(context.Background(), "t1", conn))
	require.Len(t, conn.sent, 2)
	assert.Equal(t, "u1", conn.sent[0].ID())
	assert.Equal(t, "a1", conn.sent[1].ID())
}

func TestStore_ReplayStopsOnSendError(t *testing.T) {
	s := NewStore(zap.NewNop())
	s.Upsert("t1", answer("a", "one"))
	s.Upsert("t1", answer("b", "two"))

	conn := &fakeConn{sendFn: func(*protocol.Message) error {
		return fmt.Errorf("gone")
	}}
	assert.Error(t, s.Replay(context.Background(), "t1", conn))
}

func TestStore_InFlightGuard(t *testing.T) {
	s := NewStore(zap.NewNop())
	s.Attach("t1", &fakeConn{})

	assert.True(t, s.BeginQuestion("t1"))
	assert.False(t, s.BeginQuestion("t1"))
	s.EndQuestion("t1")
	assert.True(t, s.BeginQuestion("t1"))

	// unknown tab never begins
	assert.False(t, s.BeginQuestion("nope"))
}

func TestStore_Connections(t *testing.T) {
	s := NewStore(zap.NewNop())
	c1, c2 := &fakeConn{}, &fakeConn{}
	s.Attach("t1", c1)
	s.Attach("t2", c2)
	s.Upsert("t3", answer("a", "no connection yet"))

	conns := s.Connections()
	assert.Len(t, conns, 2)
	assert.Contains(t, conns, "t1")
	assert.Contains(t, conns, "t2")
}
