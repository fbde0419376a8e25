package models

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStockChangeEventMatches(t *testing.T) {
	evt := &StockChangeEvent{ProductID: 7}

	assert.True(t, evt.Matches(AllProducts))
	assert.True(t, evt.Matches(7))
	assert.False(t, evt.Matches(8))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("store: %w", ErrUnavailable)))
	assert.False(t, IsRetryable(ErrNotFound))
	assert.False(t, IsRetryable(fmt.Errorf("wrapped: %w", ErrInvalidArgument)))
	assert.False(t, IsRetryable(nil))
}
