// 文件: pkg/vault/vault.go
// 金库门面: 外部操作的唯一入口
//
// 【核心机制】每个变更操作跑在一个调用事务 (txn) 里:
// 1. 所有读写走 stagedStore 缓冲
// 2. 业务逻辑返回错误 → 缓冲整体丢弃，权威状态纹丝不动
// 3. 成功 → 缓冲提交，出金/增发/销毁/事件在提交后执行 (fire-and-forget)
//
// 【并发模型】互斥锁串行化全部调用。记账是纯内存操作，
// 串行足够快，换来的是不需要任何细粒度锁推理。

package vault

import (
	"context"
	"fmt"
	"log"
	"sync"

	"vault.io/pkg/bank"
	"vault.io/pkg/oracle"
)

// Publisher 事件出口 (通常是 pkg/nats.Publisher)
type Publisher interface {
	Publish(subject string, data any) error
}

// Config 金库装配配置
type Config struct {
	UsdgToken string          // USDG 在账本里的代币名，默认 "USDG"
	Holder    string          // 金库自身的账本账户，默认 "vault"
	Publisher Publisher       // 可为 nil
	Snapshots *SnapshotCache  // 可为 nil
	Fees      FeeSchedule     // 默认 StandardFeeSchedule
	Store     Store           // 默认 NewMemoryStore()
}

// Vault 金库
type Vault struct {
	mu        sync.Mutex
	store     Store
	oracle    oracle.PriceOracle
	ledger    bank.Ledger
	fees      FeeSchedule
	publisher Publisher
	snapshots *SnapshotCache

	usdgToken string
	holder    string
}

// New 创建金库 (需随后 Initialize)
func New(po oracle.PriceOracle, ledger bank.Ledger, cfg Config) *Vault {
	if cfg.UsdgToken == "" {
		cfg.UsdgToken = "USDG"
	}
	if cfg.Holder == "" {
		cfg.Holder = "vault"
	}
	if cfg.Fees == nil {
		cfg.Fees = StandardFeeSchedule{}
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	return &Vault{
		store:     cfg.Store,
		oracle:    po,
		ledger:    ledger,
		fees:      cfg.Fees,
		publisher: cfg.Publisher,
		snapshots: cfg.Snapshots,
		usdgToken: cfg.UsdgToken,
		holder:    cfg.Holder,
	}
}

// Holder 金库的账本账户 (入金目标)
func (v *Vault) Holder() string { return v.holder }

// UsdgToken USDG 代币名
func (v *Vault) UsdgToken() string { return v.usdgToken }

// =============================================================================
// 调用事务
// =============================================================================

type pendingTransfer struct {
	Token  string
	To     string
	Amount int64
}

type pendingMint struct {
	Token  string
	To     string
	Amount int64
}

type pendingBurn struct {
	Token  string
	Amount int64
}

// txn 一次调用的事务上下文
type txn struct {
	v     *Vault
	ctx   context.Context
	store *stagedStore
	call  Call

	transfers []pendingTransfer
	mints     []pendingMint
	burns     []pendingBurn
	events    []stagedEvent
}

// run 跑一个变更调用: 失败丢缓冲，成功提交 + 执行副作用
func (v *Vault) run(ctx context.Context, call Call, fn func(*txn) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	t := &txn{v: v, ctx: ctx, store: newStagedStore(v.store), call: call}
	if err := fn(t); err != nil {
		return err
	}
	if err := t.store.commit(); err != nil {
		return err
	}
	v.applySideEffects(ctx, t)
	return nil
}

// view 只读调用: 同样的缓冲读路径，从不提交
func (v *Vault) view(ctx context.Context, now int64, fn func(*txn) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	t := &txn{v: v, ctx: ctx, store: newStagedStore(v.store), call: Call{Now: now}}
	return fn(t)
}

// applySideEffects 提交后的出金/增发/销毁/事件/缓存快照
// 这些都是 fire-and-forget: 失败记日志，不回滚已提交的账
func (v *Vault) applySideEffects(ctx context.Context, t *txn) {
	for _, m := range t.mints {
		if err := v.ledger.Mint(ctx, m.Token, m.To, m.Amount); err != nil {
			log.Printf("[Vault] mint failed: token=%s to=%s amount=%d err=%v", m.Token, m.To, m.Amount, err)
		}
	}
	for _, b := range t.burns {
		if err := v.ledger.Burn(ctx, b.Token, v.holder, b.Amount); err != nil {
			log.Printf("[Vault] burn failed: token=%s amount=%d err=%v", b.Token, b.Amount, err)
		}
	}
	for _, tr := range t.transfers {
		if err := v.ledger.Transfer(ctx, tr.Token, v.holder, tr.To, tr.Amount); err != nil {
			log.Printf("[Vault] transfer out failed: token=%s to=%s amount=%d err=%v", tr.Token, tr.To, tr.Amount, err)
		}
	}
	v.flushEvents(t.events)

	if v.snapshots != nil {
		for token := range t.store.pools {
			if p, err := v.store.Pool(token); err == nil {
				v.snapshots.WritePool(ctx, p)
			}
		}
	}
}

// =============================================================================
// 初始化与治理
// =============================================================================

// InitParams 初始化参数
type InitParams struct {
	Gov                     string // 空则默认调用者
	LiquidationFeeUsd       int64
	FundingRateFactor       int64
	StableFundingRateFactor int64
}

// Initialize 初始化金库 (只能一次)
// 其余全局参数落合理默认值，之后由治理逐项调整
func (v *Vault) Initialize(ctx context.Context, call Call, params InitParams) error {
	return v.run(ctx, call, func(t *txn) error {
		if _, err := t.store.Global(); err == nil {
			return ErrAlreadyInitialized
		}
		if params.LiquidationFeeUsd <= 0 || params.LiquidationFeeUsd > MaxLiquidationFeeUsd {
			return fmt.Errorf("%w: liquidation fee", ErrInvalidConfiguration)
		}
		if params.FundingRateFactor > MaxFundingRateFactor || params.StableFundingRateFactor > MaxFundingRateFactor {
			return fmt.Errorf("%w: funding rate factor", ErrInvalidConfiguration)
		}
		gov := params.Gov
		if gov == "" {
			gov = call.Sender
		}
		g := &GlobalState{
			Gov:         gov,
			Initialized: true,

			SwapEnabled:     true,
			LeverageEnabled: true,

			MaxLeverage:       50 * BasisPointsDivisor,
			LiquidationFeeUsd: params.LiquidationFeeUsd,

			TaxBasisPoints:           50,
			StableTaxBasisPoints:     20,
			MintBurnFeeBasisPoints:   30,
			SwapFeeBasisPoints:       30,
			StableSwapFeeBasisPoints: 4,
			MarginFeeBasisPoints:     10,

			FundingInterval:         8 * 3600,
			FundingRateFactor:       params.FundingRateFactor,
			StableFundingRateFactor: params.StableFundingRateFactor,

			IncludeAmmPrice: true,
		}
		log.Printf("[Vault] initialized: gov=%s", gov)
		return t.store.SetGlobal(g)
	})
}

// setGlobal 治理操作通用骨架
func (v *Vault) setGlobal(ctx context.Context, call Call, mutate func(*txn, *GlobalState) error) error {
	return v.run(ctx, call, func(t *txn) error {
		if err := t.onlyGov(); err != nil {
			return err
		}
		g, err := t.global()
		if err != nil {
			return err
		}
		if err := mutate(t, g); err != nil {
			return err
		}
		return t.store.SetGlobal(g)
	})
}

// SetGov 移交治理权
func (v *Vault) SetGov(ctx context.Context, call Call, gov string) error {
	return v.setGlobal(ctx, call, func(_ *txn, g *GlobalState) error {
		if gov == "" {
			return fmt.Errorf("%w: empty gov", ErrInvalidConfiguration)
		}
		g.Gov = gov
		return nil
	})
}

// SetManager 设置/撤销 manager
func (v *Vault) SetManager(ctx context.Context, call Call, addr string, ok bool) error {
	return v.run(ctx, call, func(t *txn) error {
		if err := t.onlyGov(); err != nil {
			return err
		}
		return t.store.SetManager(addr, ok)
	})
}

// SetLiquidator 设置/撤销清算人
func (v *Vault) SetLiquidator(ctx context.Context, call Call, addr string, ok bool) error {
	return v.run(ctx, call, func(t *txn) error {
		if err := t.onlyGov(); err != nil {
			return err
		}
		return t.store.SetLiquidator(addr, ok)
	})
}

// AddRouter 账户授权路由代为操作
func (v *Vault) AddRouter(ctx context.Context, call Call, router string) error {
	return v.run(ctx, call, func(t *txn) error {
		return t.store.SetRouter(call.Sender, router, true)
	})
}

// RemoveRouter 撤销路由授权
func (v *Vault) RemoveRouter(ctx context.Context, call Call, router string) error {
	return v.run(ctx, call, func(t *txn) error {
		return t.store.SetRouter(call.Sender, router, false)
	})
}

// SetManagerMode 开关 manager 模式
func (v *Vault) SetManagerMode(ctx context.Context, call Call, on bool) error {
	return v.setGlobal(ctx, call, func(_ *txn, g *GlobalState) error {
		g.InManagerMode = on
		return nil
	})
}

// SetPrivateLiquidationMode 开关私有清算模式
func (v *Vault) SetPrivateLiquidationMode(ctx context.Context, call Call, on bool) error {
	return v.setGlobal(ctx, call, func(_ *txn, g *GlobalState) error {
		g.InPrivateLiquidationMode = on
		return nil
	})
}

// SetSwapEnabled 开关现货交换
func (v *Vault) SetSwapEnabled(ctx context.Context, call Call, on bool) error {
	return v.setGlobal(ctx, call, func(_ *txn, g *GlobalState) error {
		g.SwapEnabled = on
		return nil
	})
}

// SetLeverageEnabled 开关杠杆交易
func (v *Vault) SetLeverageEnabled(ctx context.Context, call Call, on bool) error {
	return v.setGlobal(ctx, call, func(_ *txn, g *GlobalState) error {
		g.LeverageEnabled = on
		return nil
	})
}

// SetMaxGasPrice gas 价格上限 (0 = 不限)
func (v *Vault) SetMaxGasPrice(ctx context.Context, call Call, max int64) error {
	return v.setGlobal(ctx, call, func(_ *txn, g *GlobalState) error {
		if max < 0 {
			return fmt.Errorf("%w: negative gas price", ErrInvalidConfiguration)
		}
		g.MaxGasPrice = max
		return nil
	})
}

// SetIncludeAmmPrice 开关 AMM 价格掺入
func (v *Vault) SetIncludeAmmPrice(ctx context.Context, call Call, on bool) error {
	return v.setGlobal(ctx, call, func(_ *txn, g *GlobalState) error {
		g.IncludeAmmPrice = on
		return nil
	})
}

// SetMaxLeverage 最大杠杆 (万分比，必须 > 1x)
func (v *Vault) SetMaxLeverage(ctx context.Context, call Call, maxLeverage int64) error {
	return v.setGlobal(ctx, call, func(_ *txn, g *GlobalState) error {
		if maxLeverage <= MinLeverage {
			return fmt.Errorf("%w: max leverage must exceed 1x", ErrInvalidConfiguration)
		}
		g.MaxLeverage = maxLeverage
		return nil
	})
}

// SetBufferAmount 池子缓冲水位
func (v *Vault) SetBufferAmount(ctx context.Context, call Call, token string, amount int64) error {
	return v.run(ctx, call, func(t *txn) error {
		if err := t.onlyGov(); err != nil {
			return err
		}
		if amount < 0 {
			return fmt.Errorf("%w: negative buffer", ErrInvalidConfiguration)
		}
		p, err := t.store.Pool(token)
		if err != nil {
			return err
		}
		p.BufferAmount = amount
		return t.store.SetPool(p)
	})
}

// SetMaxGlobalShortSize 全局空头敞口上限 (0 = 不限)
func (v *Vault) SetMaxGlobalShortSize(ctx context.Context, call Call, token string, max int64) error {
	return v.run(ctx, call, func(t *txn) error {
		if err := t.onlyGov(); err != nil {
			return err
		}
		if max < 0 {
			return fmt.Errorf("%w: negative max short size", ErrInvalidConfiguration)
		}
		s, err := t.store.GlobalShort(token)
		if err != nil {
			return err
		}
		s.MaxSize = max
		return t.store.SetGlobalShort(token, s)
	})
}

// FeeParams 费率参数
type FeeParams struct {
	TaxBasisPoints           int64
	StableTaxBasisPoints     int64
	MintBurnFeeBasisPoints   int64
	SwapFeeBasisPoints       int64
	StableSwapFeeBasisPoints int64
	MarginFeeBasisPoints     int64
	LiquidationFeeUsd        int64
	MinProfitTime            int64
	HasDynamicFees           bool
}

// SetFees 设置全部费率
// 每项万分比 ≤ MaxFeeBasisPoints，清算费 ≤ MaxLiquidationFeeUsd
func (v *Vault) SetFees(ctx context.Context, call Call, p FeeParams) error {
	return v.setGlobal(ctx, call, func(_ *txn, g *GlobalState) error {
		for _, bps := range []int64{
			p.TaxBasisPoints, p.StableTaxBasisPoints, p.MintBurnFeeBasisPoints,
			p.SwapFeeBasisPoints, p.StableSwapFeeBasisPoints, p.MarginFeeBasisPoints,
		} {
			if bps < 0 || bps > MaxFeeBasisPoints {
				return fmt.Errorf("%w: fee basis points", ErrInvalidConfiguration)
			}
		}
		if p.LiquidationFeeUsd <= 0 || p.LiquidationFeeUsd > MaxLiquidationFeeUsd {
			return fmt.Errorf("%w: liquidation fee", ErrInvalidConfiguration)
		}
		if p.MinProfitTime < 0 {
			return fmt.Errorf("%w: min profit time", ErrInvalidConfiguration)
		}
		g.TaxBasisPoints = p.TaxBasisPoints
		g.StableTaxBasisPoints = p.StableTaxBasisPoints
		g.MintBurnFeeBasisPoints = p.MintBurnFeeBasisPoints
		g.SwapFeeBasisPoints = p.SwapFeeBasisPoints
		g.StableSwapFeeBasisPoints = p.StableSwapFeeBasisPoints
		g.MarginFeeBasisPoints = p.MarginFeeBasisPoints
		g.LiquidationFeeUsd = p.LiquidationFeeUsd
		g.MinProfitTime = p.MinProfitTime
		g.HasDynamicFees = p.HasDynamicFees
		return nil
	})
}

// SetFundingRate 资金费参数
// 间隔 ≥ MinFundingRateInterval，因子 ≤ MaxFundingRateFactor
func (v *Vault) SetFundingRate(ctx context.Context, call Call, interval, factor, stableFactor int64) error {
	return v.setGlobal(ctx, call, func(_ *txn, g *GlobalState) error {
		if interval < MinFundingRateInterval {
			return fmt.Errorf("%w: funding interval too short", ErrInvalidConfiguration)
		}
		if factor < 0 || factor > MaxFundingRateFactor || stableFactor < 0 || stableFactor > MaxFundingRateFactor {
			return fmt.Errorf("%w: funding rate factor", ErrInvalidConfiguration)
		}
		g.FundingInterval = interval
		g.FundingRateFactor = factor
		g.StableFundingRateFactor = stableFactor
		return nil
	})
}

// SetTokenConfig 配置白名单代币 (已存在则覆盖，权重差额入总权重)
// 配置时探测一次价格，喂价没就绪的代币直接拒绝
func (v *Vault) SetTokenConfig(ctx context.Context, call Call, cfg TokenConfig) error {
	return v.run(ctx, call, func(t *txn) error {
		if err := t.onlyGov(); err != nil {
			return err
		}
		if cfg.Token == "" || cfg.Decimals <= 0 || cfg.Decimals > 18 || cfg.Weight <= 0 ||
			cfg.MinProfitBasisPoints < 0 || cfg.MinProfitBasisPoints > MaxFeeBasisPoints ||
			cfg.MaxUsdgAmount < 0 {
			return fmt.Errorf("%w: token config", ErrInvalidConfiguration)
		}
		if _, err := t.minPrice(cfg.Token); err != nil {
			return err
		}

		g, err := t.global()
		if err != nil {
			return err
		}
		old, err := t.store.TokenConfig(cfg.Token)
		if err != nil {
			return err
		}
		if old != nil {
			g.TotalTokenWeights -= old.Weight
		} else {
			g.WhitelistedTokens = append(g.WhitelistedTokens, cfg.Token)
		}
		g.TotalTokenWeights += cfg.Weight
		if err := t.store.SetGlobal(g); err != nil {
			return err
		}
		log.Printf("[Vault] set token config: token=%s weight=%d stable=%v", cfg.Token, cfg.Weight, cfg.IsStable)
		return t.store.SetTokenConfig(&cfg)
	})
}

// ClearTokenConfig 移除白名单代币 (可重新添加)
func (v *Vault) ClearTokenConfig(ctx context.Context, call Call, token string) error {
	return v.run(ctx, call, func(t *txn) error {
		if err := t.onlyGov(); err != nil {
			return err
		}
		old, err := t.store.TokenConfig(token)
		if err != nil {
			return err
		}
		if old == nil {
			return fmt.Errorf("%w: %s", ErrTokenNotWhitelisted, token)
		}
		g, err := t.global()
		if err != nil {
			return err
		}
		g.TotalTokenWeights -= old.Weight
		kept := g.WhitelistedTokens[:0]
		for _, tok := range g.WhitelistedTokens {
			if tok != token {
				kept = append(kept, tok)
			}
		}
		g.WhitelistedTokens = kept
		if err := t.store.SetGlobal(g); err != nil {
			return err
		}
		return t.store.DeleteTokenConfig(token)
	})
}

// SetUsdgAmount 治理直接校正某代币的 USDG 债务
func (v *Vault) SetUsdgAmount(ctx context.Context, call Call, token string, amount int64) error {
	return v.run(ctx, call, func(t *txn) error {
		if err := t.onlyGov(); err != nil {
			return err
		}
		if amount < 0 {
			return fmt.Errorf("%w: negative usdg amount", ErrInvalidConfiguration)
		}
		p, err := t.store.Pool(token)
		if err != nil {
			return err
		}
		if amount > p.UsdgAmount {
			return t.increaseUsdgAmount(token, amount-p.UsdgAmount)
		}
		return t.decreaseUsdgAmount(token, p.UsdgAmount-amount)
	})
}

// WithdrawFees 提取累计费用
func (v *Vault) WithdrawFees(ctx context.Context, call Call, token, receiver string) (int64, error) {
	var amount int64
	err := v.run(ctx, call, func(t *txn) error {
		if err := t.onlyGov(); err != nil {
			return err
		}
		p, err := t.store.Pool(token)
		if err != nil {
			return err
		}
		amount = p.FeeReserves
		if amount == 0 {
			return nil
		}
		p.FeeReserves = 0
		if err := t.store.SetPool(p); err != nil {
			return err
		}
		log.Printf("[Vault] withdraw fees: token=%s amount=%d receiver=%s", token, amount, receiver)
		return t.transferOut(token, amount, receiver)
	})
	return amount, err
}

// UpgradeVault 治理把代币划到新金库 (迁移用)
func (v *Vault) UpgradeVault(ctx context.Context, call Call, newVault, token string, amount int64) error {
	return v.run(ctx, call, func(t *txn) error {
		if err := t.onlyGov(); err != nil {
			return err
		}
		if amount <= 0 {
			return ErrZeroAmount
		}
		return t.transferOut(token, amount, newVault)
	})
}

// =============================================================================
// 资金操作
// =============================================================================

// DirectPoolDeposit 直接给池子捐入代币 (不铸 USDG，不记债务)
func (v *Vault) DirectPoolDeposit(ctx context.Context, call Call, token string) error {
	return v.run(ctx, call, func(t *txn) error {
		if _, err := t.validateWhitelisted(token); err != nil {
			return err
		}
		amount, err := t.transferIn(token)
		if err != nil {
			return err
		}
		if amount == 0 {
			return ErrZeroAmount
		}
		log.Printf("[Vault] direct pool deposit: token=%s amount=%d", token, amount)
		return t.increasePoolAmount(token, amount)
	})
}

// BuyUSDG 存入代币换 USDG (铸给 receiver)
// 返回铸出的 USDG 数量
func (v *Vault) BuyUSDG(ctx context.Context, call Call, token, receiver string) (int64, error) {
	var mintAmount int64
	err := v.run(ctx, call, func(t *txn) error {
		if err := t.validateManager(); err != nil {
			return err
		}
		if _, err := t.validateWhitelisted(token); err != nil {
			return err
		}
		amount, err := t.transferIn(token)
		if err != nil {
			return err
		}
		if amount == 0 {
			return ErrZeroAmount
		}
		if err := t.updateCumulativeFundingRate(token); err != nil {
			return err
		}

		price, err := t.minPrice(token)
		if err != nil {
			return err
		}
		dec, err := t.tokenDecimals(token)
		if err != nil {
			return err
		}

		usdgAmount, err := mulDiv(amount, price, PricePrecision)
		if err != nil {
			return err
		}
		usdgAmount, err = adjustForDecimals(usdgAmount, dec, UsdgDecimals)
		if err != nil {
			return err
		}
		if usdgAmount == 0 {
			return ErrZeroAmount
		}

		g, err := t.global()
		if err != nil {
			return err
		}
		feeBps, err := t.feeBasisPoints(token, usdgAmount, g.MintBurnFeeBasisPoints, g.TaxBasisPoints, true)
		if err != nil {
			return err
		}
		amountAfterFees, err := t.collectSwapFees(token, amount, feeBps)
		if err != nil {
			return err
		}

		mintAmount, err = mulDiv(amountAfterFees, price, PricePrecision)
		if err != nil {
			return err
		}
		mintAmount, err = adjustForDecimals(mintAmount, dec, UsdgDecimals)
		if err != nil {
			return err
		}

		if err := t.increaseUsdgAmount(token, mintAmount); err != nil {
			return err
		}
		if err := t.increasePoolAmount(token, amountAfterFees); err != nil {
			return err
		}

		t.mints = append(t.mints, pendingMint{Token: v.usdgToken, To: receiver, Amount: mintAmount})
		log.Printf("[Vault] buy usdg: token=%s amount=%d mint=%d fee_bps=%d", token, amount, mintAmount, feeBps)
		t.publish(SubjectUsdgBuy, &UsdgEvent{
			Account: call.Sender, Token: token, TokenDelta: amount, UsdgDelta: mintAmount, FeeBps: feeBps,
		})
		return nil
	})
	return mintAmount, err
}

// SellUSDG 交回 USDG 赎回代币 (USDG 销毁)
// 返回付给 receiver 的代币数量
func (v *Vault) SellUSDG(ctx context.Context, call Call, token, receiver string) (int64, error) {
	var amountOut int64
	err := v.run(ctx, call, func(t *txn) error {
		if err := t.validateManager(); err != nil {
			return err
		}
		if _, err := t.validateWhitelisted(token); err != nil {
			return err
		}
		usdgAmount, err := t.transferIn(v.usdgToken)
		if err != nil {
			return err
		}
		if usdgAmount == 0 {
			return ErrZeroAmount
		}
		if err := t.updateCumulativeFundingRate(token); err != nil {
			return err
		}

		redemption, err := t.redemptionAmount(token, usdgAmount)
		if err != nil {
			return err
		}
		if redemption == 0 {
			return fmt.Errorf("%w: redemption amount", ErrInvalidAmount)
		}

		if err := t.decreaseUsdgAmount(token, usdgAmount); err != nil {
			return err
		}
		if err := t.decreasePoolAmount(token, redemption); err != nil {
			return err
		}

		// USDG 在提交后销毁，余额快照先行扣减对齐
		t.burns = append(t.burns, pendingBurn{Token: v.usdgToken, Amount: usdgAmount})
		up, err := t.store.Pool(v.usdgToken)
		if err != nil {
			return err
		}
		up.TokenBalance -= usdgAmount
		if err := t.store.SetPool(up); err != nil {
			return err
		}

		g, err := t.global()
		if err != nil {
			return err
		}
		feeBps, err := t.feeBasisPoints(token, usdgAmount, g.MintBurnFeeBasisPoints, g.TaxBasisPoints, false)
		if err != nil {
			return err
		}
		amountOut, err = t.collectSwapFees(token, redemption, feeBps)
		if err != nil {
			return err
		}
		if amountOut == 0 {
			return fmt.Errorf("%w: amount out", ErrInvalidAmount)
		}
		if err := t.transferOut(token, amountOut, receiver); err != nil {
			return err
		}

		log.Printf("[Vault] sell usdg: token=%s usdg=%d out=%d fee_bps=%d", token, usdgAmount, amountOut, feeBps)
		t.publish(SubjectUsdgSell, &UsdgEvent{
			Account: call.Sender, Token: token, TokenDelta: amountOut, UsdgDelta: usdgAmount, FeeBps: feeBps,
		})
		return nil
	})
	return amountOut, err
}

// redemptionAmount usdgAmount 可赎回的代币数量 (按 max price)
func (t *txn) redemptionAmount(token string, usdgAmount int64) (int64, error) {
	price, err := t.maxPrice(token)
	if err != nil {
		return 0, err
	}
	redemption, err := mulDiv(usdgAmount, PricePrecision, price)
	if err != nil {
		return 0, err
	}
	dec, err := t.tokenDecimals(token)
	if err != nil {
		return 0, err
	}
	return adjustForDecimals(redemption, UsdgDecimals, dec)
}

// Swap 现货交换 tokenIn → tokenOut
// 返回付给 receiver 的 tokenOut 数量
func (v *Vault) Swap(ctx context.Context, call Call, tokenIn, tokenOut, receiver string) (int64, error) {
	var amountOutAfterFees int64
	err := v.run(ctx, call, func(t *txn) error {
		g, err := t.global()
		if err != nil {
			return err
		}
		if !g.SwapEnabled {
			return ErrSwapsDisabled
		}
		if tokenIn == tokenOut {
			return fmt.Errorf("%w: identical tokens", ErrInvalidTokenRole)
		}
		if _, err := t.validateWhitelisted(tokenIn); err != nil {
			return err
		}
		if _, err := t.validateWhitelisted(tokenOut); err != nil {
			return err
		}
		if err := t.updateCumulativeFundingRate(tokenIn); err != nil {
			return err
		}
		if err := t.updateCumulativeFundingRate(tokenOut); err != nil {
			return err
		}

		amountIn, err := t.transferIn(tokenIn)
		if err != nil {
			return err
		}
		if amountIn == 0 {
			return ErrZeroAmount
		}

		priceIn, err := t.minPrice(tokenIn)
		if err != nil {
			return err
		}
		priceOut, err := t.maxPrice(tokenOut)
		if err != nil {
			return err
		}
		decIn, err := t.tokenDecimals(tokenIn)
		if err != nil {
			return err
		}
		decOut, err := t.tokenDecimals(tokenOut)
		if err != nil {
			return err
		}

		amountOut, err := mulDiv(amountIn, priceIn, priceOut)
		if err != nil {
			return err
		}
		amountOut, err = adjustForDecimals(amountOut, decIn, decOut)
		if err != nil {
			return err
		}

		// 债务从 tokenOut 迁到 tokenIn
		usdgAmount, err := mulDiv(amountIn, priceIn, PricePrecision)
		if err != nil {
			return err
		}
		usdgAmount, err = adjustForDecimals(usdgAmount, decIn, UsdgDecimals)
		if err != nil {
			return err
		}

		feeBps, err := t.swapFeeBasisPoints(tokenIn, tokenOut, usdgAmount)
		if err != nil {
			return err
		}
		// 交换费从流出腿收取
		amountOutAfterFees, err = t.collectSwapFees(tokenOut, amountOut, feeBps)
		if err != nil {
			return err
		}

		if err := t.increaseUsdgAmount(tokenIn, usdgAmount); err != nil {
			return err
		}
		if err := t.decreaseUsdgAmount(tokenOut, usdgAmount); err != nil {
			return err
		}
		if err := t.increasePoolAmount(tokenIn, amountIn); err != nil {
			return err
		}
		if err := t.decreasePoolAmount(tokenOut, amountOut); err != nil {
			return err
		}
		if err := t.validateBufferAmount(tokenOut); err != nil {
			return err
		}
		if err := t.transferOut(tokenOut, amountOutAfterFees, receiver); err != nil {
			return err
		}

		log.Printf("[Vault] swap: in=%s out=%s amount_in=%d amount_out=%d fee_bps=%d",
			tokenIn, tokenOut, amountIn, amountOutAfterFees, feeBps)
		t.publish(SubjectSwap, &SwapEvent{
			Account: call.Sender, TokenIn: tokenIn, TokenOut: tokenOut,
			AmountIn: amountIn, AmountOut: amountOutAfterFees, FeeBps: feeBps,
		})
		return nil
	})
	return amountOutAfterFees, err
}

// =============================================================================
// 杠杆操作
// =============================================================================

// IncreasePosition 开仓/加仓
func (v *Vault) IncreasePosition(ctx context.Context, call Call, account, collateralToken, indexToken string, sizeDelta int64, isLong bool) error {
	if sizeDelta <= 0 {
		return fmt.Errorf("%w: size delta", ErrInvalidAmount)
	}
	return v.run(ctx, call, func(t *txn) error {
		return t.increasePosition(account, collateralToken, indexToken, sizeDelta, isLong)
	})
}

// DecreasePosition 减仓/平仓，返回付给 receiver 的代币数量
func (v *Vault) DecreasePosition(ctx context.Context, call Call, account, collateralToken, indexToken string, collateralDelta, sizeDelta int64, isLong bool, receiver string) (int64, error) {
	var amountOut int64
	err := v.run(ctx, call, func(t *txn) error {
		g, err := t.global()
		if err != nil {
			return err
		}
		if err := t.validateGasPrice(g); err != nil {
			return err
		}
		if err := t.validateRouter(account); err != nil {
			return err
		}
		amountOut, err = t.decreasePosition(account, collateralToken, indexToken, collateralDelta, sizeDelta, isLong, receiver)
		return err
	})
	return amountOut, err
}

// LiquidatePosition 清算
func (v *Vault) LiquidatePosition(ctx context.Context, call Call, account, collateralToken, indexToken string, isLong bool, feeReceiver string) error {
	return v.run(ctx, call, func(t *txn) error {
		return t.liquidatePosition(account, collateralToken, indexToken, isLong, feeReceiver)
	})
}
