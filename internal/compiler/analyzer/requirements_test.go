package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// sampleSets enumerates a spread of vectors, including the bottom and top elements.
func sampleSets() []RequirementSet {
	return []RequirementSet{
		{},
		{NeedsJSON: true, NeedsAllocator: true},
		{NeedsHTTP: true, NeedsRuntime: true, NeedsAllocator: true},
		{NeedsAsync: true, NeedsRuntime: true},
		{NeedsStringUtils: true, NeedsStd: true},
		{NeedsHashmapHelper: true},
		{
			NeedsJSON: true, NeedsHTTP: true, NeedsAsync: true, NeedsAllocator: true,
			NeedsRuntime: true, NeedsStringUtils: true, NeedsHashmapHelper: true, NeedsStd: true,
		},
	}
}

func TestMergeLaws(t *testing.T) {
	sets := sampleSets()
	for _, a := range sets {
		assert.Equal(t, a, a.Merge(a), "idempotent")
		assert.Equal(t, a, a.Merge(RequirementSet{}), "identity")
		for _, b := range sets {
			assert.Equal(t, a.Merge(b), b.Merge(a), "commutative")
			for _, c := range sets {
				assert.Equal(t, a.Merge(b).Merge(c), a.Merge(b.Merge(c)), "associative")
			}
		}
	}
}

func TestMergeIsMonotone(t *testing.T) {
	sets := sampleSets()
	for _, a := range sets {
		for _, b := range sets {
			m := a.Merge(b)
			for _, flag := range a.Flags() {
				assert.Contains(t, m.Flags(), flag)
			}
		}
	}
}

func TestFlagsAndString(t *testing.T) {
	r := RequirementSet{NeedsJSON: true, NeedsAllocator: true}
	assert.Equal(t, []string{"json", "allocator"}, r.Flags())
	assert.Equal(t, "{json, allocator}", r.String())
	assert.Equal(t, "{}", RequirementSet{}.String())
	assert.True(t, RequirementSet{}.IsEmpty())
	assert.False(t, r.IsEmpty())
}
