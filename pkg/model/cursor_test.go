package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCursor struct {
	outcomes []Outcome
	failErr  error
	pos      int
	closed   int
}

func (c *stubCursor) Next() bool {
	if c.pos >= len(c.outcomes) {
		return false
	}
	c.pos++
	return true
}

func (c *stubCursor) Outcome() Outcome { return c.outcomes[c.pos-1] }
func (c *stubCursor) Err() error       { return c.failErr }
func (c *stubCursor) Close() error     { c.closed++; return nil }

func TestDrainCount(t *testing.T) {
	id := NewDocID(time.Unix(1700000000, 0), 1, 2, 3)
	cur := &stubCursor{outcomes: []Outcome{{ID: id}, {ID: id}, {ID: id}}}

	n, err := DrainCount(cur)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.GreaterOrEqual(t, cur.closed, 1)
}

func TestDrainCountPropagatesError(t *testing.T) {
	failure := errors.New("boom")
	cur := &stubCursor{outcomes: []Outcome{{}}, failErr: failure}

	_, err := DrainCount(cur)
	assert.ErrorIs(t, err, failure)
	assert.GreaterOrEqual(t, cur.closed, 1)
}

func TestEmptyCursor(t *testing.T) {
	cur := EmptyCursor()
	assert.False(t, cur.Next())
	assert.NoError(t, cur.Err())
	assert.Equal(t, Outcome{}, cur.Outcome())
	assert.NoError(t, cur.Close())
	assert.NoError(t, cur.Close())
}
