// 文件: pkg/vault/store.go
// 金库状态存储
//
// 【设计模式】Repository Pattern
// - 定义存储操作的抽象接口
// - 业务层只依赖接口，不关心具体实现
// - 方便嵌套写缓冲层 (见 staged.go)
//
// 【面试】为什么读操作返回拷贝?
// → 调用方拿到的是快照，修改后必须显式 Set 回去才生效。
//   这让"算了但没存"这类 bug 在类型层面就无处藏身。

package vault

// Store 金库状态存储接口
//
// 所有 Get 返回深拷贝; 记录不存在时返回零值而不是错误
// (池子/资金费/空头敞口天然有"从零开始"的语义)。
// Position 例外: 不存在返回 nil，由调用方决定是开新仓还是报错。
type Store interface {
	// ===== 全局配置 (单例) =====
	Global() (*GlobalState, error)
	SetGlobal(g *GlobalState) error

	// ===== 代币配置 =====
	TokenConfig(token string) (*TokenConfig, error) // 不存在返回 nil
	SetTokenConfig(cfg *TokenConfig) error
	DeleteTokenConfig(token string) error

	// ===== 每代币池子状态 =====
	Pool(token string) (*PoolState, error)
	SetPool(p *PoolState) error

	// ===== 每代币资金费状态 =====
	Funding(token string) (*FundingState, error)
	SetFunding(token string, f *FundingState) error

	// ===== 每指数代币全局空头敞口 =====
	GlobalShort(token string) (*GlobalShortState, error)
	SetGlobalShort(token string, s *GlobalShortState) error

	// ===== 持仓 (按编码后的主键) =====
	Position(key string) (*Position, error) // 不存在返回 nil
	SetPosition(key string, p *Position) error
	DeletePosition(key string) error

	// ===== 角色集合 =====
	IsManager(addr string) (bool, error)
	SetManager(addr string, ok bool) error
	IsLiquidator(addr string) (bool, error)
	SetLiquidator(addr string, ok bool) error
	IsRouter(account, router string) (bool, error)
	SetRouter(account, router string, ok bool) error
}

// 确保实现了接口
var _ Store = (*MemoryStore)(nil)

// =============================================================================
// MemoryStore - 内存实现
// =============================================================================

// MemoryStore 进程内权威存储
//
// 并发控制在 Vault 门面层 (一次只处理一个调用)，
// 这里不加锁，保持实现简单、读写无放大。
type MemoryStore struct {
	global       *GlobalState
	tokens       map[string]TokenConfig
	pools        map[string]PoolState
	fundings     map[string]FundingState
	globalShorts map[string]GlobalShortState
	positions    map[string]Position
	managers     map[string]bool
	liquidators  map[string]bool
	routers      map[string]bool // key: account + "/" + router
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:       make(map[string]TokenConfig),
		pools:        make(map[string]PoolState),
		fundings:     make(map[string]FundingState),
		globalShorts: make(map[string]GlobalShortState),
		positions:    make(map[string]Position),
		managers:     make(map[string]bool),
		liquidators:  make(map[string]bool),
		routers:      make(map[string]bool),
	}
}

func (s *MemoryStore) Global() (*GlobalState, error) {
	if s.global == nil {
		return nil, ErrNotInitialized
	}
	return s.global.clone(), nil
}

func (s *MemoryStore) SetGlobal(g *GlobalState) error {
	s.global = g.clone()
	return nil
}

func (s *MemoryStore) TokenConfig(token string) (*TokenConfig, error) {
	cfg, ok := s.tokens[token]
	if !ok {
		return nil, nil
	}
	c := cfg
	return &c, nil
}

func (s *MemoryStore) SetTokenConfig(cfg *TokenConfig) error {
	s.tokens[cfg.Token] = *cfg
	return nil
}

func (s *MemoryStore) DeleteTokenConfig(token string) error {
	delete(s.tokens, token)
	return nil
}

func (s *MemoryStore) Pool(token string) (*PoolState, error) {
	p, ok := s.pools[token]
	if !ok {
		// 零值池子: 所有字段从 0 开始累计
		return &PoolState{Token: token}, nil
	}
	c := p
	return &c, nil
}

func (s *MemoryStore) SetPool(p *PoolState) error {
	s.pools[p.Token] = *p
	return nil
}

func (s *MemoryStore) Funding(token string) (*FundingState, error) {
	f := s.fundings[token]
	return &f, nil
}

func (s *MemoryStore) SetFunding(token string, f *FundingState) error {
	s.fundings[token] = *f
	return nil
}

func (s *MemoryStore) GlobalShort(token string) (*GlobalShortState, error) {
	g := s.globalShorts[token]
	return &g, nil
}

func (s *MemoryStore) SetGlobalShort(token string, g *GlobalShortState) error {
	s.globalShorts[token] = *g
	return nil
}

func (s *MemoryStore) Position(key string) (*Position, error) {
	p, ok := s.positions[key]
	if !ok {
		return nil, nil
	}
	c := p
	return &c, nil
}

func (s *MemoryStore) SetPosition(key string, p *Position) error {
	s.positions[key] = *p
	return nil
}

func (s *MemoryStore) DeletePosition(key string) error {
	delete(s.positions, key)
	return nil
}

func (s *MemoryStore) IsManager(addr string) (bool, error) {
	return s.managers[addr], nil
}

func (s *MemoryStore) SetManager(addr string, ok bool) error {
	if ok {
		s.managers[addr] = true
	} else {
		delete(s.managers, addr)
	}
	return nil
}

func (s *MemoryStore) IsLiquidator(addr string) (bool, error) {
	return s.liquidators[addr], nil
}

func (s *MemoryStore) SetLiquidator(addr string, ok bool) error {
	if ok {
		s.liquidators[addr] = true
	} else {
		delete(s.liquidators, addr)
	}
	return nil
}

func routerKey(account, router string) string {
	return account + "/" + router
}

func (s *MemoryStore) IsRouter(account, router string) (bool, error) {
	return s.routers[routerKey(account, router)], nil
}

func (s *MemoryStore) SetRouter(account, router string, ok bool) error {
	if ok {
		s.routers[routerKey(account, router)] = true
	} else {
		delete(s.routers, routerKey(account, router))
	}
	return nil
}
