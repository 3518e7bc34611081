// 文件: pkg/vault/staged.go
// 写缓冲层: 一次调用的所有写入先进缓冲，成功才落盘
//
// 【设计模式】装饰器模式 (Decorator Pattern)
// - 包装底层 Store，透明添加事务能力
// - 调用方只看到 Store 接口
//
// 【核心语义】
// - 读: 先查缓冲，miss 则穿透到底层
// - 写: 只写缓冲
// - Commit: 把缓冲按类型回放到底层; 出错则直接丢弃整个缓冲
//   → 任何返回错误的操作都不会留下部分状态

package vault

// 确保实现了接口
var _ Store = (*stagedStore)(nil)

type stagedStore struct {
	base Store

	global       *GlobalState
	tokens       map[string]*TokenConfig // nil 值表示已删除
	pools        map[string]*PoolState
	fundings     map[string]*FundingState
	globalShorts map[string]*GlobalShortState
	positions    map[string]*Position // nil 值表示已删除
	managers     map[string]bool
	liquidators  map[string]bool
	routers      map[string]bool
}

func newStagedStore(base Store) *stagedStore {
	return &stagedStore{
		base:         base,
		tokens:       make(map[string]*TokenConfig),
		pools:        make(map[string]*PoolState),
		fundings:     make(map[string]*FundingState),
		globalShorts: make(map[string]*GlobalShortState),
		positions:    make(map[string]*Position),
		managers:     make(map[string]bool),
		liquidators:  make(map[string]bool),
		routers:      make(map[string]bool),
	}
}

// commit 把缓冲回放到底层存储
// 底层是内存实现时每个 Set 都不会失败，回放天然原子;
// 换可失败的底层时这里是唯一需要二阶段处理的位置。
func (s *stagedStore) commit() error {
	if s.global != nil {
		if err := s.base.SetGlobal(s.global); err != nil {
			return err
		}
	}
	for token, cfg := range s.tokens {
		if cfg == nil {
			if err := s.base.DeleteTokenConfig(token); err != nil {
				return err
			}
			continue
		}
		if err := s.base.SetTokenConfig(cfg); err != nil {
			return err
		}
	}
	for _, p := range s.pools {
		if err := s.base.SetPool(p); err != nil {
			return err
		}
	}
	for token, f := range s.fundings {
		if err := s.base.SetFunding(token, f); err != nil {
			return err
		}
	}
	for token, g := range s.globalShorts {
		if err := s.base.SetGlobalShort(token, g); err != nil {
			return err
		}
	}
	for key, p := range s.positions {
		if p == nil {
			if err := s.base.DeletePosition(key); err != nil {
				return err
			}
			continue
		}
		if err := s.base.SetPosition(key, p); err != nil {
			return err
		}
	}
	for addr, ok := range s.managers {
		if err := s.base.SetManager(addr, ok); err != nil {
			return err
		}
	}
	for addr, ok := range s.liquidators {
		if err := s.base.SetLiquidator(addr, ok); err != nil {
			return err
		}
	}
	for key, ok := range s.routers {
		account, router := splitRouterKey(key)
		if err := s.base.SetRouter(account, router, ok); err != nil {
			return err
		}
	}
	return nil
}

func splitRouterKey(key string) (string, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

// ===== 读: 缓冲优先 =====

func (s *stagedStore) Global() (*GlobalState, error) {
	if s.global != nil {
		return s.global.clone(), nil
	}
	return s.base.Global()
}

func (s *stagedStore) TokenConfig(token string) (*TokenConfig, error) {
	if cfg, ok := s.tokens[token]; ok {
		if cfg == nil {
			return nil, nil
		}
		c := *cfg
		return &c, nil
	}
	return s.base.TokenConfig(token)
}

func (s *stagedStore) Pool(token string) (*PoolState, error) {
	if p, ok := s.pools[token]; ok {
		c := *p
		return &c, nil
	}
	return s.base.Pool(token)
}

func (s *stagedStore) Funding(token string) (*FundingState, error) {
	if f, ok := s.fundings[token]; ok {
		c := *f
		return &c, nil
	}
	return s.base.Funding(token)
}

func (s *stagedStore) GlobalShort(token string) (*GlobalShortState, error) {
	if g, ok := s.globalShorts[token]; ok {
		c := *g
		return &c, nil
	}
	return s.base.GlobalShort(token)
}

func (s *stagedStore) Position(key string) (*Position, error) {
	if p, ok := s.positions[key]; ok {
		if p == nil {
			return nil, nil
		}
		c := *p
		return &c, nil
	}
	return s.base.Position(key)
}

func (s *stagedStore) IsManager(addr string) (bool, error) {
	if ok, hit := s.managers[addr]; hit {
		return ok, nil
	}
	return s.base.IsManager(addr)
}

func (s *stagedStore) IsLiquidator(addr string) (bool, error) {
	if ok, hit := s.liquidators[addr]; hit {
		return ok, nil
	}
	return s.base.IsLiquidator(addr)
}

func (s *stagedStore) IsRouter(account, router string) (bool, error) {
	if ok, hit := s.routers[routerKey(account, router)]; hit {
		return ok, nil
	}
	return s.base.IsRouter(account, router)
}

// ===== 写: 只进缓冲 =====

func (s *stagedStore) SetGlobal(g *GlobalState) error {
	s.global = g.clone()
	return nil
}

func (s *stagedStore) SetTokenConfig(cfg *TokenConfig) error {
	c := *cfg
	s.tokens[cfg.Token] = &c
	return nil
}

func (s *stagedStore) DeleteTokenConfig(token string) error {
	s.tokens[token] = nil
	return nil
}

func (s *stagedStore) SetPool(p *PoolState) error {
	c := *p
	s.pools[p.Token] = &c
	return nil
}

func (s *stagedStore) SetFunding(token string, f *FundingState) error {
	c := *f
	s.fundings[token] = &c
	return nil
}

func (s *stagedStore) SetGlobalShort(token string, g *GlobalShortState) error {
	c := *g
	s.globalShorts[token] = &c
	return nil
}

func (s *stagedStore) SetPosition(key string, p *Position) error {
	c := *p
	s.positions[key] = &c
	return nil
}

func (s *stagedStore) DeletePosition(key string) error {
	s.positions[key] = nil
	return nil
}

func (s *stagedStore) SetManager(addr string, ok bool) error {
	s.managers[addr] = ok
	return nil
}

func (s *stagedStore) SetLiquidator(addr string, ok bool) error {
	s.liquidators[addr] = ok
	return nil
}

func (s *stagedStore) SetRouter(account, router string, ok bool) error {
	s.routers[routerKey(account, router)] = ok
	return nil
}
