package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedgraph/feedgraph/internal/model"
)

func TestMarshalFlags_EmptyMapsStayCompact(t *testing.T) {
	got, err := marshalFlags[model.AccountFlags](nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", got)

	got, err = marshalFlags(map[string]model.AccountFlags{})
	require.NoError(t, err)
	assert.Equal(t, "{}", got)
}

func TestUnmarshalFlags_EmptyColumnsYieldNil(t *testing.T) {
	for _, raw := range []string{"", "{}"} {
		got, err := unmarshalFlags[model.PostFlags](raw)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestFlagsRoundTrip(t *testing.T) {
	in := map[string]model.PollFlags{
		"twitter//viewer-1": {Voted: true, Selected: []int{0, 2}},
	}
	raw, err := marshalFlags(in)
	require.NoError(t, err)

	out, err := unmarshalFlags[model.PollFlags](raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestUnmarshalFlags_Corrupt(t *testing.T) {
	_, err := unmarshalFlags[model.AccountFlags]("{not json")
	assert.Error(t, err)
}
