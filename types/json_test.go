package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSerializerRoundTrip(t *testing.T) {
	s := NewJSONSerializer[note]()
	in := note{ID: "n-1", Text: "One"}

	body, err := s.ToStorage(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"n-1","text":"One"}`, string(body))

	out, err := s.FromStorage(body)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestJSONSerializerPointerType(t *testing.T) {
	s := NewJSONSerializer[*memo]()
	out, err := s.FromStorage([]byte(`{"id":"m-1","text":"hi"}`))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, EntityID("m-1"), out.EntityID())
}

func TestBodyScan(t *testing.T) {
	var b Body
	require.NoError(t, b.Scan([]byte(`{"a":1}`)))
	assert.Equal(t, `{"a":1}`, string(b))

	require.NoError(t, b.Scan(`{"b":2}`))
	assert.Equal(t, `{"b":2}`, string(b))

	require.NoError(t, b.Scan(nil))
	assert.Nil(t, b)

	assert.Error(t, b.Scan(42))
}

func TestBodyValue(t *testing.T) {
	v, err := Body(`{"a":1}`).Value()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, v)

	v, err = Body(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}
