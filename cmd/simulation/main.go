package main

import (
	"context"
	"flag"
	"log"
	"time"

	"vault.io/pkg/bank"
	"vault.io/pkg/nats"
	"vault.io/pkg/oracle"
	"vault.io/pkg/vault"

	"github.com/redis/go-redis/v9"
)

// 本地联调脚本: 内存账本 + 静态喂价跑一遍完整的金库生命周期。
// 可选接上 NATS (事件 + 冷存储写入)、Redis (池子快照)、MySQL (流水落库)。

const (
	usd = vault.PricePrecision // 1 USD
	btc = 100_000_000         // 1 BTC (8 位小数)
)

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	natsURL := flag.String("nats", "", "NATS URL (空则不接)")
	redisAddr := flag.String("redis", "", "Redis 地址 (空则不接)")
	mysqlDSN := flag.String("mysql", "", "MySQL DSN (空则不落库)")
	flag.Parse()

	ctx := context.Background()

	// 1. 装配: 喂价 + 账本 + 金库
	// -------------------------------------------------------------------------
	po := oracle.NewStaticOracle()
	po.SetPrice("BTC", 50_000*usd)
	po.SetPrice("USDT", 1*usd)

	var publisher *nats.Publisher
	cfg := vault.Config{}
	if *natsURL != "" {
		p, err := nats.NewPublisher(*natsURL)
		if err != nil {
			log.Fatalf("connect nats: %v", err)
		}
		publisher = p
		defer publisher.Close()
		cfg.Publisher = publisher
	}
	if *redisAddr != "" {
		rds := redis.NewClient(&redis.Options{Addr: *redisAddr})
		cfg.Snapshots = vault.NewSnapshotCache(rds)
	}

	var sink bank.EventSink
	if publisher != nil {
		sink = publisher
	}
	ledger := bank.NewMemoryLedger(sink)

	if *mysqlDSN != "" && *natsURL != "" {
		db, err := bank.OpenMySQL(*mysqlDSN)
		if err != nil {
			log.Fatalf("open mysql: %v", err)
		}
		repo := bank.NewBankRepo(db)
		if err := repo.AutoMigrate(); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		writer, err := bank.NewNatsDBWriter(repo, *natsURL)
		if err != nil {
			log.Fatalf("create db writer: %v", err)
		}
		if err := writer.Start(); err != nil {
			log.Fatalf("start db writer: %v", err)
		}
		defer writer.Stop()
		log.Println("✅ cold-storage writer started")
	}

	v := vault.New(po, ledger, cfg)
	now := time.Now().Unix()
	gov := vault.Call{Sender: "gov", Now: now}

	// 2. 初始化与代币配置
	// -------------------------------------------------------------------------
	must(v.Initialize(ctx, gov, vault.InitParams{
		LiquidationFeeUsd:       5 * usd,
		FundingRateFactor:       600,
		StableFundingRateFactor: 600,
	}))
	must(v.SetTokenConfig(ctx, gov, vault.TokenConfig{
		Token: "BTC", Decimals: 8, Weight: 10000, MinProfitBasisPoints: 0, IsShortable: true,
	}))
	must(v.SetTokenConfig(ctx, gov, vault.TokenConfig{
		Token: "USDT", Decimals: 6, Weight: 10000, IsStable: true,
	}))
	log.Println("✅ vault initialized: BTC + USDT whitelisted")

	// 3. LP 注入流动性: 10 BTC 换 USDG
	// -------------------------------------------------------------------------
	ledger.SetBalance("lp", "BTC", 100*btc)
	must(ledger.Transfer(ctx, "BTC", "lp", v.Holder(), 10*btc))
	minted, err := v.BuyUSDG(ctx, vault.Call{Sender: "lp", Now: now}, "BTC", "lp")
	must(err)
	log.Printf("💧 LP deposited 10 BTC, minted %d USDG units", minted)

	// 4. 交易员开 5x 多头
	// -------------------------------------------------------------------------
	ledger.SetBalance("alice", "BTC", 10*btc)
	must(ledger.Transfer(ctx, "BTC", "alice", v.Holder(), 1*btc)) // 1 BTC 抵押
	must(v.IncreasePosition(ctx, vault.Call{Sender: "alice", Now: now},
		"alice", "BTC", "BTC", 250_000*usd, true)) // 名义 250k USD ≈ 5x

	key := vault.PositionKey{Account: "alice", CollateralToken: "BTC", IndexToken: "BTC", IsLong: true}
	pos, _ := v.GetPosition(ctx, key)
	log.Printf("📈 alice long opened: size=%d collateral=%d avg_price=%d", pos.Size, pos.Collateral, pos.AveragePrice)

	// 5. 价格上涨，部分止盈
	// -------------------------------------------------------------------------
	po.SetPrice("BTC", 55_000*usd)
	out, err := v.DecreasePosition(ctx, vault.Call{Sender: "alice", Now: now + 3600},
		"alice", "BTC", "BTC", 0, 100_000*usd, true, "alice")
	must(err)
	log.Printf("💰 alice took profit on 100k USD: received %d sats", out)

	// 6. 暴跌触发清算
	// -------------------------------------------------------------------------
	po.SetPrice("BTC", 32_000*usd)
	err = v.LiquidatePosition(ctx, vault.Call{Sender: "keeper", Now: now + 7200},
		"alice", "BTC", "BTC", true, "keeper")
	if err != nil {
		log.Printf("⚠️ liquidation rejected: %v", err)
	} else {
		log.Printf("⚡️ alice liquidated, fee paid to keeper")
	}

	pool, _ := v.GetPool(ctx, "BTC")
	log.Printf("🏦 final BTC pool: amount=%d reserved=%d fees=%d guaranteed_usd=%d",
		pool.PoolAmount, pool.ReservedAmount, pool.FeeReserves, pool.GuaranteedUsd)
}

func must(err error) {
	if err != nil {
		log.Fatalf("simulation failed: %v", err)
	}
}
