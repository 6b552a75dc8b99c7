package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilStoreIsAMiss(t *testing.T) {
	var s *Store
	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.NoError(t, s.Set(context.Background(), "k", "v", 0))
	assert.NoError(t, s.Delete(context.Background(), "k"))

	empty := NewStore(nil, "identity:")
	_, err = empty.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrMiss)
}
