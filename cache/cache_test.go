package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/newswalk/models"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func doneOutcome(phrase string) *models.SearchOutcome {
	return &models.SearchOutcome{
		Request: models.NewSearchRequest(phrase, "all", 1),
		Walk:    &models.WalkResult{State: models.StateDone, TotalReported: -1},
	}
}

func TestKey(t *testing.T) {
	a := Key(models.NewSearchRequest("oil", "World", 2))
	b := Key(models.NewSearchRequest("oil", "world", 2))
	c := Key(models.NewSearchRequest("oil", "world", 3))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestGetSet(t *testing.T) {
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newCache(10, clk.now)
	out := doneOutcome("oil")
	key := Key(out.Request)

	_, ok := c.Get(key, 1000)
	assert.False(t, ok)

	c.Set(key, out)
	got, ok := c.Get(key, 1000)
	require.True(t, ok)
	assert.Same(t, out, got)

	_, ok = c.Get(key, 0)
	assert.False(t, ok, "max_age 0 disables lookup")

	clk.t = clk.t.Add(2 * time.Second)
	_, ok = c.Get(key, 1000)
	assert.False(t, ok, "entry older than max_age")
}

func TestSet_SkipsFailedWalks(t *testing.T) {
	c := newCache(10, time.Now)
	out := doneOutcome("oil")
	out.Walk.State = models.StateFailed

	c.Set(Key(out.Request), out)
	c.Set("nil", nil)
	assert.Equal(t, 0, c.Len())
}

func TestSet_EvictsAtCapacity(t *testing.T) {
	c := newCache(2, time.Now)
	for _, p := range []string{"a", "b", "c"} {
		out := doneOutcome(p)
		c.Set(Key(out.Request), out)
	}
	assert.Equal(t, 2, c.Len())

	again := doneOutcome("c")
	c.Set(Key(again.Request), again)
	assert.Equal(t, 2, c.Len(), "overwriting a key does not evict")
}

func TestEvictExpired(t *testing.T) {
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newCache(10, clk.now)
	out := doneOutcome("oil")
	c.Set(Key(out.Request), out)

	clk.t = clk.t.Add(30 * time.Minute)
	c.evictExpired()
	assert.Equal(t, 1, c.Len())

	clk.t = clk.t.Add(31 * time.Minute)
	c.evictExpired()
	assert.Equal(t, 0, c.Len())
}
