package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMergesAndSorts(t *testing.T) {
	got := Normalize([]Item{
		{ProductID: 7, Quantity: 1},
		{ProductID: 2, Quantity: 3},
		{ProductID: 7, Quantity: 4},
	})

	assert.Equal(t, []Item{{ProductID: 2, Quantity: 3}, {ProductID: 7, Quantity: 5}}, got)
	assert.Empty(t, Normalize(nil))
}

func TestInsufficientStockError(t *testing.T) {
	var err error = &InsufficientStockError{ProductID: 2}

	assert.ErrorIs(t, err, ErrInsufficientStock)
	var ise *InsufficientStockError
	assert.True(t, errors.As(err, &ise))
	assert.Equal(t, int64(2), ise.ProductID)
	assert.Equal(t, "insufficient stock for product 2", err.Error())
}
