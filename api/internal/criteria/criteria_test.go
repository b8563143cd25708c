package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetValidate(t *testing.T) {
	require.NoError(t, Defaults().Validate())
	require.NoError(t, Set{}.Validate())

	cases := map[string]Set{
		"empty id":     {{ID: " ", Label: "x", Type: Desired}},
		"empty label":  {{ID: "1", Label: "", Type: Desired}},
		"unknown type": {{ID: "1", Label: "x", Type: "maybe"}},
		"bad level":    {{ID: "1", Label: "x", Type: Forbidden, Strictness: "Extreme"}},
		"duplicate id": {{ID: "1", Label: "x", Type: Desired}, {ID: "1", Label: "y", Type: Desired}},
	}
	for name, set := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, set.Validate(), ErrInvalid)
		})
	}
}

func TestPartitionKeepsOrder(t *testing.T) {
	set := Set{
		{ID: "a", Label: "A", Type: Desired},
		{ID: "b", Label: "B", Type: Forbidden, Strictness: Low},
		{ID: "c", Label: "C", Type: Desired},
		{ID: "d", Label: "D", Type: Forbidden},
	}
	forbidden, desired := set.Partition()
	assert.Equal(t, []string{"b", "d"}, ids(forbidden))
	assert.Equal(t, []string{"a", "c"}, ids(desired))
	assert.Equal(t, Medium, forbidden[1].EffectiveStrictness())
}

func TestNormalize(t *testing.T) {
	in := Set{{ID: " 1 ", Label: " Clean background ", Type: Desired, Strictness: High}}
	out := in.Normalize()
	assert.Equal(t, Criterion{ID: "1", Label: "Clean background", Type: Desired}, out[0])
	assert.Equal(t, " 1 ", in[0].ID, "input is not mutated")
}

func TestCloneIsIndependent(t *testing.T) {
	a := Defaults()
	b := a.Clone()
	b[0].Label = "changed"
	assert.NotEqual(t, a[0].Label, b[0].Label)
	assert.True(t, a.Equal(Defaults()))
	assert.Nil(t, Set(nil).Clone())
}

func TestComprehensiveIsValid(t *testing.T) {
	require.NoError(t, Comprehensive().Validate())
	forbidden, desired := Comprehensive().Partition()
	assert.Len(t, forbidden, 7)
	assert.Len(t, desired, 1)
}

func ids(s Set) []string {
	out := make([]string, 0, len(s))
	for _, c := range s {
		out = append(out, c.ID)
	}
	return out
}
