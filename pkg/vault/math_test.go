// 文件: pkg/vault/math_test.go

package vault

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDiv(t *testing.T) {
	// 普通情况
	r, err := mulDiv(10, 20, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(50), r)

	// 向零截断
	r, err = mulDiv(7, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(10), r)

	// 中间值超 int64 但结果不超
	r, err = mulDiv(math.MaxInt64, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64/2), r)

	// 除零
	_, err = mulDiv(1, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// 结果溢出
	_, err = mulDiv(math.MaxInt64, 2, 1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAdjustForDecimals(t *testing.T) {
	// 8 位 (BTC) → 12 位 (USDG)
	r, err := adjustForDecimals(100_000_000, 8, 12)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000_000), r)

	// 12 → 6 截断
	r, err = adjustForDecimals(1_234_567, 12, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r)

	// 同 decimals 原样
	r, err = adjustForDecimals(42, 6, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(42), r)
}

func TestAddChecked(t *testing.T) {
	r, err := addChecked(1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), r)

	_, err = addChecked(math.MaxInt64, 1)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = addChecked(math.MinInt64, -1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSubToZero(t *testing.T) {
	assert.Equal(t, int64(3), subToZero(5, 2))
	assert.Equal(t, int64(0), subToZero(2, 5))
	assert.Equal(t, int64(0), subToZero(5, 5))
}
