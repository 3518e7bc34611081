// 文件: pkg/vault/types.go
// 金库核心数据结构
//
// 【精度约定】
// - 价格 / USD 金额: int64, 乘以 10^12 (PricePrecision)
// - 代币数量: int64, 按代币自身 decimals 存储
// - 费率: 万分比 (BasisPointsDivisor)
// - 资金费率: 百万分比 (FundingRatePrecision)
//
// 【面试点】为什么金额用 int64 定点数而不是 float64?
// → 浮点数有精度问题，记账系统必须用定点数。
//   乘除中间值可能溢出 int64，统一走 mulDiv (math/big)。

package vault

import "fmt"

// =============================================================================
// 精度常量
// =============================================================================

const (
	// BasisPointsDivisor 万分比基数 (0.01% = 1)
	BasisPointsDivisor = 10000

	// FundingRatePrecision 资金费率精度 (百万分比)
	FundingRatePrecision = 1_000_000

	// PricePrecision 价格与 USD 金额精度 (10^12)
	PricePrecision = 1_000_000_000_000

	// UsdgDecimals USDG 债务单位小数位，与 PricePrecision 对齐
	UsdgDecimals = 12

	// MinLeverage 最小杠杆 1x (万分比表示)
	MinLeverage = 10000

	// MaxFeeBasisPoints 费率上限 5%
	MaxFeeBasisPoints = 500

	// MaxLiquidationFeeUsd 清算费上限 100 USD
	MaxLiquidationFeeUsd = 100 * PricePrecision

	// MinFundingRateInterval 资金费结算间隔下限 (1小时)
	MinFundingRateInterval = 3600

	// MaxFundingRateFactor 资金费率因子上限 (1%)
	MaxFundingRateFactor = 10000
)

// =============================================================================
// GlobalState - 全局配置 (单例)
// =============================================================================

// GlobalState 金库全局状态
//
// 只通过治理操作修改，在 Initialize 时创建一次。
// 不做包级全局变量，而是显式存在 Store 里、按调用加载，
// 保证操作可组合、可单测。
type GlobalState struct {
	Gov         string
	Initialized bool

	SwapEnabled     bool
	LeverageEnabled bool

	MaxLeverage       int64 // 万分比, 50x = 500000
	LiquidationFeeUsd int64 // USD, PricePrecision 精度

	// ===== 费率 (万分比, 均 <= MaxFeeBasisPoints) =====
	TaxBasisPoints           int64
	StableTaxBasisPoints     int64
	MintBurnFeeBasisPoints   int64
	SwapFeeBasisPoints       int64
	StableSwapFeeBasisPoints int64
	MarginFeeBasisPoints     int64

	MinProfitTime  int64 // 秒
	HasDynamicFees bool

	// ===== 资金费参数 =====
	FundingInterval         int64 // 秒
	FundingRateFactor       int64
	StableFundingRateFactor int64

	TotalTokenWeights int64

	// ===== 运行标志 =====
	IncludeAmmPrice          bool
	UseSwapPricing           bool
	InManagerMode            bool
	InPrivateLiquidationMode bool

	MaxGasPrice int64

	WhitelistedTokens []string
}

// clone 深拷贝，Store 读取时使用，避免调用方改到底层状态
func (g *GlobalState) clone() *GlobalState {
	c := *g
	c.WhitelistedTokens = append([]string(nil), g.WhitelistedTokens...)
	return &c
}

// =============================================================================
// TokenConfig - 白名单代币配置
// =============================================================================

// TokenConfig 代币配置
// 由治理 SetTokenConfig 创建，ClearTokenConfig 删除 (可重新添加)。
// 不变量: 所有代币 Weight 之和 == GlobalState.TotalTokenWeights
type TokenConfig struct {
	Token                string `gorm:"column:token;type:varchar(64);uniqueIndex"`
	Decimals             int64  `gorm:"column:decimals"`
	Weight               int64  `gorm:"column:weight"`
	MinProfitBasisPoints int64  `gorm:"column:min_profit_bps"`
	MaxUsdgAmount        int64  `gorm:"column:max_usdg_amount"` // 0 表示不设上限
	IsStable             bool   `gorm:"column:is_stable"`
	IsShortable          bool   `gorm:"column:is_shortable"`
}

func (TokenConfig) TableName() string {
	return "vault_tokens"
}

// =============================================================================
// PoolState - 每代币资金池状态
// =============================================================================

// PoolState 单个代币的池子账本
//
// 【关键字段区分】
// - PoolAmount: 可作为杠杆抵押的代币数量
// - TokenBalance: 上次观察到的链上余额，只用来推算入金 (transferIn)
//   两者分开记，保证保证金入金不会混进池子
type PoolState struct {
	Token string `gorm:"column:token;type:varchar(64);uniqueIndex"`

	PoolAmount     int64 `gorm:"column:pool_amount"`
	ReservedAmount int64 `gorm:"column:reserved_amount"` // 不变量: <= PoolAmount
	BufferAmount   int64 `gorm:"column:buffer_amount"`   // 不变量: PoolAmount >= BufferAmount
	FeeReserves    int64 `gorm:"column:fee_reserves"`
	GuaranteedUsd  int64 `gorm:"column:guaranteed_usd"` // 多头 sum(size - collateral)
	UsdgAmount     int64 `gorm:"column:usdg_amount"`    // 该代币背书的 USDG 债务
	TokenBalance   int64 `gorm:"column:token_balance"`
}

func (PoolState) TableName() string {
	return "vault_pools"
}

// =============================================================================
// FundingState - 每代币资金费状态
// =============================================================================

// FundingState 累计资金费率与上次结算时间
// LastFundingTime 总是对齐到 FundingInterval 的整数倍边界
type FundingState struct {
	CumulativeRate  int64 // FundingRatePrecision 精度
	LastFundingTime int64 // Unix 秒
}

// =============================================================================
// GlobalShortState - 每指数代币的全局空头敞口
// =============================================================================

// GlobalShortState 聚合空头敞口
type GlobalShortState struct {
	Size         int64 // USD
	AveragePrice int64 // 成交量加权开仓均价
	MaxSize      int64 // 0 表示不设上限
}

// =============================================================================
// Position - 杠杆持仓
// =============================================================================

// Position 单个杠杆持仓
//
// 状态机: Closed (无记录) → Open (Size > 0) → Closed (减仓到 0 时删除记录)
//
// 不变量:
// - Size == 0 ⇒ Collateral == 0
// - Size > 0  ⇒ Size >= Collateral
type Position struct {
	Size              int64 // USD 名义价值
	Collateral        int64 // USD, 已扣除费用
	AveragePrice      int64
	EntryFundingRate  int64 // 开仓/加仓时的累计资金费率
	ReserveAmount     int64 // 抵押代币数量, 为利润兑付预留
	RealisedPnl       int64 // 可为负
	LastIncreasedTime int64 // Unix 秒
}

// IsEmpty 是否无持仓
func (p *Position) IsEmpty() bool {
	return p.Size == 0
}

// PositionKey 持仓主键 (account, collateralToken, indexToken, isLong)
type PositionKey struct {
	Account         string
	CollateralToken string
	IndexToken      string
	IsLong          bool
}

// Encode 编码为存储键
// 字段不允许为空或含分隔符，否则键可能歧义
func (k PositionKey) Encode() (string, error) {
	if k.Account == "" || k.CollateralToken == "" || k.IndexToken == "" {
		return "", ErrSerializationFailure
	}
	for _, s := range []string{k.Account, k.CollateralToken, k.IndexToken} {
		for i := 0; i < len(s); i++ {
			if s[i] == '|' {
				return "", ErrSerializationFailure
			}
		}
	}
	side := "short"
	if k.IsLong {
		side = "long"
	}
	return fmt.Sprintf("%s|%s|%s|%s", k.Account, k.CollateralToken, k.IndexToken, side), nil
}

// =============================================================================
// Call - 调用上下文
// =============================================================================

// Call 一次外部调用的上下文
// 显式传入而不是读环境，方便测试固定时间与调用者
type Call struct {
	Sender   string
	GasPrice int64 // 0 表示未知, 不校验
	Now      int64 // Unix 秒
}
