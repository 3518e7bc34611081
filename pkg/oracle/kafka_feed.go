// 文件: pkg/oracle/kafka_feed.go
// Kafka 行情喂价
//
// 消费行情 topic 的报价消息，写入 StaticOracle。
// 消息格式 (JSON):
//
//	{"token":"BTC","max_price":45010000000000000,"min_price":44990000000000000,"amm_price":0}
//
// 【设计】喂价失败只记日志不中断消费: 行情流里单条坏消息不该拖垮整条流。

package oracle

import (
	"encoding/json"
	"fmt"
	"log"

	"vault.io/pkg/kafka"
)

// PriceTick 行情消息
type PriceTick struct {
	Token    string `json:"token"`
	MaxPrice int64  `json:"max_price"`
	MinPrice int64  `json:"min_price"`
	AmmPrice int64  `json:"amm_price"`
}

// KafkaFeed Kafka 行情喂价器
type KafkaFeed struct {
	consumer *kafka.Consumer
	oracle   *StaticOracle
}

// NewKafkaFeed 创建喂价器
// brokers/groupID/topics 透传给通用消费者
func NewKafkaFeed(brokers []string, groupID string, topics []string, o *StaticOracle) (*KafkaFeed, error) {
	f := &KafkaFeed{oracle: o}

	cfg := kafka.DefaultConsumerConfig(brokers, groupID, topics)
	consumer, err := kafka.NewConsumer(cfg, f.handle)
	if err != nil {
		return nil, fmt.Errorf("create price feed consumer: %w", err)
	}
	f.consumer = consumer
	return f, nil
}

// Start 启动消费
func (f *KafkaFeed) Start() {
	f.consumer.Start()
	log.Printf("[Oracle] kafka price feed started")
}

// Stop 停止消费
func (f *KafkaFeed) Stop() error {
	return f.consumer.Stop()
}

func (f *KafkaFeed) handle(topic string, _ int32, offset int64, _, value []byte) error {
	var tick PriceTick
	if err := json.Unmarshal(value, &tick); err != nil {
		return fmt.Errorf("decode price tick: %w", err)
	}
	if tick.Token == "" || tick.MaxPrice <= 0 || tick.MinPrice <= 0 {
		log.Printf("[Oracle] drop invalid tick: topic=%s offset=%d token=%q", topic, offset, tick.Token)
		return nil
	}
	f.oracle.SetQuote(tick.Token, Quote{
		MaxPrice: tick.MaxPrice,
		MinPrice: tick.MinPrice,
		AmmPrice: tick.AmmPrice,
	})
	return nil
}
