// 文件: pkg/vault/math.go
// 定点数算术
//
// 【核心问题】价格精度 1e12，池子数量上亿，a*b 随手就超 int64
// 【方案】所有 a*b/c 型乘除统一走 mulDiv，中间值用 big.Int
//
// 【面试】为什么不全程用 big.Int?
// → 存储和接口保持 int64 定点数，心智负担小、可直接比较;
//   只有乘除中间值需要更宽的空间。

package vault

import "math/big"

// mulDiv 计算 a * b / c，中间值不会溢出
// c == 0 或结果超出 int64 范围返回 ErrInvalidAmount
func mulDiv(a, b, c int64) (int64, error) {
	if c == 0 {
		return 0, ErrInvalidAmount
	}
	r := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	r.Quo(r, big.NewInt(c))
	if !r.IsInt64() {
		return 0, ErrInvalidAmount
	}
	return r.Int64(), nil
}

// pow10 10^n (n 为代币 decimals，最大 18)
func pow10(n int64) int64 {
	r := int64(1)
	for i := int64(0); i < n; i++ {
		r *= 10
	}
	return r
}

// adjustForDecimals 金额在不同 decimals 之间换算
// amount * 10^to / 10^from
func adjustForDecimals(amount, fromDecimals, toDecimals int64) (int64, error) {
	return mulDiv(amount, pow10(toDecimals), pow10(fromDecimals))
}

// addChecked a + b，溢出返回 ErrInvalidAmount
func addChecked(a, b int64) (int64, error) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, ErrInvalidAmount
	}
	return s, nil
}

// subToZero a - b，结果为负时归零 (空头敞口递减等场景)
func subToZero(a, b int64) int64 {
	if b >= a {
		return 0
	}
	return a - b
}

// abs 绝对值
func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
