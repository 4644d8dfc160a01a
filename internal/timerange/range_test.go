package timerange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func TestRangeEmptyAndContains(t *testing.T) {
	r := New(at(0), at(10))
	assert.False(t, r.IsEmpty())
	assert.True(t, r.Contains(at(0)))
	assert.True(t, r.Contains(at(9)))
	assert.False(t, r.Contains(at(10)), "upper bound is exclusive")

	assert.True(t, New(at(5), at(5)).IsEmpty())
	assert.True(t, New(at(6), at(5)).IsEmpty())
	assert.False(t, Since(at(5)).IsEmpty())
	assert.True(t, Unbounded().Contains(at(-1000)))
}

func TestRangeDuration(t *testing.T) {
	d, ok := New(at(0), at(30)).Duration()
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, d)

	_, ok = Since(at(0)).Duration()
	assert.False(t, ok)
}

func TestRangeAdjacency(t *testing.T) {
	a := New(at(0), at(10))
	b := New(at(10), at(20))
	c := New(at(11), at(20))

	assert.True(t, a.IsAdjacentTo(b))
	assert.True(t, b.IsAdjacentTo(a))
	assert.False(t, a.IsAdjacentTo(c))
	assert.False(t, a.IsAdjacentTo(New(at(10), at(10))), "empty range is never adjacent")
	assert.True(t, Until(at(10)).IsAdjacentTo(Since(at(10))))
}

func TestRangeStrictOrdering(t *testing.T) {
	a := New(at(0), at(10))
	b := New(at(10), at(20))

	assert.True(t, a.IsStrictlyLeftOf(b))
	assert.True(t, b.IsStrictlyRightOf(a))
	assert.False(t, b.IsStrictlyLeftOf(a))
	assert.False(t, New(at(0), at(11)).IsStrictlyLeftOf(b))
	assert.False(t, Since(at(0)).IsStrictlyLeftOf(b))
}

func TestRangeUnion(t *testing.T) {
	u, ok := New(at(0), at(10)).Union(New(at(10), at(20)))
	require.True(t, ok)
	assert.True(t, u.Equal(New(at(0), at(20))))

	u, ok = New(at(0), at(15)).Union(New(at(10), at(20)))
	require.True(t, ok)
	assert.True(t, u.Equal(New(at(0), at(20))))

	_, ok = New(at(0), at(5)).Union(New(at(10), at(20)))
	assert.False(t, ok)

	u, ok = Until(at(10)).Union(New(at(10), at(20)))
	require.True(t, ok)
	assert.False(t, u.HasLower())
	assert.True(t, u.Upper.Equal(at(20)))

	u, ok = New(at(0), at(0)).Union(New(at(3), at(4)))
	require.True(t, ok)
	assert.True(t, u.Equal(New(at(3), at(4))))
}

func TestRangeIntersect(t *testing.T) {
	i := New(at(0), at(20)).Intersect(New(at(5), at(15)))
	assert.True(t, i.Equal(New(at(5), at(15))))

	i = New(at(0), at(10)).Intersect(New(at(10), at(20)))
	assert.True(t, i.IsEmpty())

	i = Unbounded().Intersect(Since(at(3)))
	assert.True(t, i.Lower.Equal(at(3)))
	assert.False(t, i.HasUpper())
}

func TestRangeOverlaps(t *testing.T) {
	assert.True(t, New(at(0), at(10)).Overlaps(New(at(9), at(20))))
	assert.False(t, New(at(0), at(10)).Overlaps(New(at(10), at(20))))
	assert.True(t, Unbounded().Overlaps(New(at(0), at(1))))
	assert.False(t, Unbounded().Overlaps(New(at(1), at(1))))
}

func TestRangeWiden(t *testing.T) {
	w := New(at(100), at(200)).Widen(50 * time.Second)
	assert.True(t, w.Equal(New(at(50), at(250))))

	w = Since(at(100)).Widen(50 * time.Second)
	assert.True(t, w.Lower.Equal(at(50)))
	assert.False(t, w.HasUpper())
}

func TestRangeString(t *testing.T) {
	assert.Equal(t, "[-oo,+oo)", Unbounded().String())
	assert.Equal(t, "[2026-03-01T08:00:00.000Z,+oo)", Since(at(0)).String())
}
