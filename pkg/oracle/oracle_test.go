// 文件: pkg/oracle/oracle_test.go

package oracle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usd = int64(1_000_000_000_000)

func TestStaticOracleMaxMin(t *testing.T) {
	o := NewStaticOracle()
	o.SetQuote("BTC", Quote{MaxPrice: 50_010 * usd, MinPrice: 49_990 * usd})

	max, err := o.MaxPrice("BTC", false, false)
	require.NoError(t, err)
	assert.Equal(t, 50_010*usd, max)

	min, err := o.MinPrice("BTC", false, false)
	require.NoError(t, err)
	assert.Equal(t, 49_990*usd, min)
}

func TestStaticOracleNoPrice(t *testing.T) {
	o := NewStaticOracle()
	_, err := o.MaxPrice("DOGE", false, false)
	assert.ErrorIs(t, err, ErrNoPrice)

	// 非法报价等同没有报价
	o.SetQuote("DOGE", Quote{MaxPrice: 0, MinPrice: 0})
	_, err = o.MinPrice("DOGE", false, false)
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestStaticOracleAmmWidensSpread(t *testing.T) {
	o := NewStaticOracle()
	o.SetQuote("BTC", Quote{MaxPrice: 50_010 * usd, MinPrice: 49_990 * usd, AmmPrice: 51_000 * usd})

	// AMM 价更高: 抬高 max，不动 min
	max, _ := o.MaxPrice("BTC", true, false)
	assert.Equal(t, 51_000*usd, max)
	min, _ := o.MinPrice("BTC", true, false)
	assert.Equal(t, 49_990*usd, min)

	// AMM 价更低: 压低 min，不动 max
	o.SetQuote("BTC", Quote{MaxPrice: 50_010 * usd, MinPrice: 49_990 * usd, AmmPrice: 49_000 * usd})
	max, _ = o.MaxPrice("BTC", true, false)
	assert.Equal(t, 50_010*usd, max)
	min, _ = o.MinPrice("BTC", true, false)
	assert.Equal(t, 49_000*usd, min)

	// 不掺 AMM 时只看盘口
	max, _ = o.MaxPrice("BTC", false, false)
	assert.Equal(t, 50_010*usd, max)
}

func TestSetPriceConvenience(t *testing.T) {
	o := NewStaticOracle()
	o.SetPrice("USDT", usd)

	max, _ := o.MaxPrice("USDT", false, false)
	min, _ := o.MinPrice("USDT", false, false)
	assert.Equal(t, usd, max)
	assert.Equal(t, usd, min)
}

func TestKafkaFeedHandleTick(t *testing.T) {
	o := NewStaticOracle()
	f := &KafkaFeed{oracle: o}

	payload, err := json.Marshal(PriceTick{Token: "BTC", MaxPrice: 50_010 * usd, MinPrice: 49_990 * usd})
	require.NoError(t, err)
	require.NoError(t, f.handle("ticker.btc", 0, 1, nil, payload))

	max, err := o.MaxPrice("BTC", false, false)
	require.NoError(t, err)
	assert.Equal(t, 50_010*usd, max)
}

func TestTickMessageRoundTrip(t *testing.T) {
	m := &tickMessage{topic: "ticker", tick: PriceTick{Token: "BTC", MaxPrice: 2, MinPrice: 1}}
	assert.Equal(t, "ticker", m.Topic())
	assert.Equal(t, "BTC", m.Key()) // 同代币保序

	raw, err := m.Value()
	require.NoError(t, err)

	var decoded PriceTick
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, m.tick, decoded)
}

func TestKafkaFeedDropsInvalidTick(t *testing.T) {
	o := NewStaticOracle()
	f := &KafkaFeed{oracle: o}

	// 坏 JSON 返回错误
	err := f.handle("ticker.btc", 0, 1, nil, []byte("{not json"))
	assert.Error(t, err)

	// 字段非法丢弃但不报错 (不拖垮消费)
	payload, _ := json.Marshal(PriceTick{Token: "BTC", MaxPrice: -1, MinPrice: 1})
	assert.NoError(t, f.handle("ticker.btc", 0, 2, nil, payload))
	_, err = o.MaxPrice("BTC", false, false)
	assert.ErrorIs(t, err, ErrNoPrice)
}
