package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/ember/pkg/value"
)

func TestSetAndGet(t *testing.T) {
	tbl := New()
	key := value.NewString("x")

	isNew := tbl.Set(key, value.NumberVal(42))
	assert.True(t, isNew)

	got, ok := tbl.Get(key)
	require.True(t, ok)
	assert.Equal(t, value.NumberVal(42), got)
}

func TestSetOverwrite(t *testing.T) {
	tbl := New()
	key := value.NewString("x")

	tbl.Set(key, value.NumberVal(1))
	isNew := tbl.Set(key, value.NumberVal(2))
	assert.False(t, isNew)

	got, _ := tbl.Get(key)
	assert.Equal(t, value.NumberVal(2), got)
}

func TestGetMissing(t *testing.T) {
	tbl := New()
	_, ok := tbl.Get(value.NewString("missing"))
	assert.False(t, ok)
}

func TestDeleteThenProbeContinuesPastTombstone(t *testing.T) {
	tbl := New()
	// Two keys in a fresh capacity-8 table; whether they share a bucket
	// depends on their hashes, so this checks that deleting one leaves the
	// other reachable and the deleted one gone.
	a := value.NewString("a")
	b := value.NewString("b")
	tbl.Set(a, value.NumberVal(1))
	tbl.Set(b, value.NumberVal(2))

	require.True(t, tbl.Delete(a))

	// b must still be reachable even though a's bucket (possibly earlier
	// in b's probe chain) is now a tombstone.
	got, ok := tbl.Get(b)
	require.True(t, ok)
	assert.Equal(t, value.NumberVal(2), got)

	_, ok = tbl.Get(a)
	assert.False(t, ok)
}

func TestLoadFactorNeverExceedsThreeQuarters(t *testing.T) {
	tbl := New()
	for i := 0; i < 200; i++ {
		key := value.NewString(string(rune('a' + (i % 26))) + string(rune(i)))
		tbl.Set(key, value.NumberVal(float64(i)))
		assert.LessOrEqual(t, float64(tbl.count)/float64(tbl.Capacity()), maxLoad)
	}
}

func TestFindStringInterningLookup(t *testing.T) {
	tbl := New()
	s := value.NewString("hello")
	tbl.Set(s, value.Nil)

	found := tbl.FindString("hello", value.FNV1a32("hello"))
	require.NotNil(t, found)
	assert.Same(t, s, found)

	assert.Nil(t, tbl.FindString("goodbye", value.FNV1a32("goodbye")))
}

func TestCapacityDoublesFromEight(t *testing.T) {
	tbl := New()
	tbl.Set(value.NewString("one"), value.NumberVal(1))
	assert.Equal(t, initialCapacity, tbl.Capacity())

	// the 7th key would push the load past 0.75 of 8, so the table doubles
	for _, k := range []string{"two", "three", "four", "five", "six", "seven"} {
		tbl.Set(value.NewString(k), value.Nil)
	}
	assert.Equal(t, 2*initialCapacity, tbl.Capacity())
}
