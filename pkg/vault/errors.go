// 文件: pkg/vault/errors.go
// 金库错误定义
//
// 【设计】错误是分类的哨兵值，不是控制流
// - 调用方用 errors.Is 判断类别
// - 所有错误同步返回，没有后台重试
// - 任何返回错误的调用都不会留下部分状态 (见 staged.go)

package vault

import "errors"

var (
	// 权限类
	ErrUnauthorized = errors.New("vault: unauthorized")

	// 配置类
	ErrInvalidConfiguration = errors.New("vault: invalid configuration")
	ErrAlreadyInitialized   = errors.New("vault: already initialized")
	ErrNotInitialized       = errors.New("vault: not initialized")

	// 偿付能力 / 不变量类
	ErrInsufficientCollateral = errors.New("vault: insufficient collateral")
	ErrInsufficientPool       = errors.New("vault: insufficient pool amount")
	ErrPoolOverflow           = errors.New("vault: pool amount exceeds balance")
	ErrBufferBreached         = errors.New("vault: pool amount below buffer")
	ErrMaxReserveExceeded     = errors.New("vault: reserved amount exceeds pool")
	ErrUsdgCapExceeded        = errors.New("vault: max usdg amount exceeded")
	ErrMaxShortsExceeded      = errors.New("vault: max global short size exceeded")

	// 代币角色类
	ErrTokenNotWhitelisted = errors.New("vault: token not whitelisted")
	ErrInvalidTokenRole    = errors.New("vault: invalid token role")

	// 操作参数类
	ErrZeroAmount         = errors.New("vault: zero amount")
	ErrInvalidAmount      = errors.New("vault: invalid amount")
	ErrSwapsDisabled      = errors.New("vault: swaps disabled")
	ErrLeverageDisabled   = errors.New("vault: leverage disabled")
	ErrMaxGasPriceReached = errors.New("vault: gas price exceeds limit")

	// 持仓类
	ErrPositionNotFound    = errors.New("vault: position not found")
	ErrPositionUnderwater  = errors.New("vault: losses exceed collateral")
	ErrMaxLeverageExceeded = errors.New("vault: max leverage exceeded")

	// 编码 / 外部依赖类
	ErrSerializationFailure = errors.New("vault: position key serialization failed")
	ErrInvalidPrice         = errors.New("vault: invalid price from oracle")
)
