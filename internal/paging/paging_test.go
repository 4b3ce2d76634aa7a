package paging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, Params{Page: 1, PageSize: DefaultPageSize}, Params{}.Normalize())
	assert.Equal(t, Params{Page: 3, PageSize: MaxPageSize}, Params{Page: 3, PageSize: 1000}.Normalize())
}

func TestOffsetLimit(t *testing.T) {
	p := Params{Page: 3, PageSize: 10}
	assert.Equal(t, uint64(10), p.Limit())
	assert.Equal(t, uint64(20), p.Offset())
}

func TestNewResultNeverNil(t *testing.T) {
	r := NewResult[string](nil, 0, Params{})
	assert.NotNil(t, r.Items)
	assert.Equal(t, 1, r.Page)
}
