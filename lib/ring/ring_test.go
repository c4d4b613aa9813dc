package ring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyRing(t *testing.T) {
	r := New()
	assert.Equal(t, "", r.Get("key"))
	assert.Zero(t, r.Len())
}

func TestGetIsStable(t *testing.T) {
	r := New("a:1", "b:1", "c:1")
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("user:%d", i)
		assert.Equal(t, r.Get(key), r.Get(key))
		assert.Contains(t, r.Endpoints(), r.Get(key))
	}
}

func TestOrderIndependent(t *testing.T) {
	r1 := New("a:1", "b:1", "c:1")
	r2 := New("c:1", "a:1", "b:1", "a:1")
	require.Equal(t, 3, r2.Len())
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("k%d", i)
		assert.Equal(t, r1.Get(key), r2.Get(key))
	}
}

func TestRemoveOnlyMovesAffectedKeys(t *testing.T) {
	r := New("a:1", "b:1", "c:1", "d:1")
	before := make(map[string]string)
	for i := 0; i < 500; i++ {
		key := fmt.Sprintf("k%d", i)
		before[key] = r.Get(key)
	}

	require.True(t, r.Remove("b:1"))
	require.False(t, r.Remove("b:1"))

	for key, ep := range before {
		got := r.Get(key)
		assert.NotEqual(t, "b:1", got)
		if ep != "b:1" {
			assert.Equal(t, ep, got, "key %s moved without its endpoint leaving", key)
		}
	}
}

func TestAddSpreadsKeys(t *testing.T) {
	r := New("a:1")
	require.True(t, r.Add("b:1"))
	require.False(t, r.Add("b:1"))

	counts := make(map[string]int)
	for i := 0; i < 1000; i++ {
		counts[r.Get(fmt.Sprintf("k%d", i))]++
	}
	assert.Len(t, counts, 2)
	assert.Greater(t, counts["a:1"], 300)
	assert.Greater(t, counts["b:1"], 300)
}
