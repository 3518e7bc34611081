// 文件: pkg/oracle/feed_publisher.go
// Kafka 行情发布端
//
// 喂价进程用 TickPublisher 把盘口报价推进行情 topic，
// 消费端见 kafka_feed.go。同代币的报价以 token 作分区 key 保序。

package oracle

import (
	"encoding/json"
	"fmt"

	"vault.io/pkg/kafka"
)

// 确保实现了消息接口
var _ kafka.Message = (*tickMessage)(nil)

type tickMessage struct {
	topic string
	tick  PriceTick
}

func (m *tickMessage) Topic() string          { return m.topic }
func (m *tickMessage) Key() string            { return m.tick.Token }
func (m *tickMessage) Value() ([]byte, error) { return json.Marshal(m.tick) }

// TickPublisher 行情发布器
type TickPublisher struct {
	producer *kafka.Producer
	topic    string
}

// NewTickPublisher 创建发布器
func NewTickPublisher(brokers []string, topic string) (*TickPublisher, error) {
	producer, err := kafka.NewProducer(kafka.DefaultProducerConfig(brokers))
	if err != nil {
		return nil, fmt.Errorf("create price feed producer: %w", err)
	}
	return &TickPublisher{producer: producer, topic: topic}, nil
}

// Publish 发布一条报价
// 坏报价在发布端就拦下，消费端的校验是第二道防线
func (p *TickPublisher) Publish(tick PriceTick) error {
	if tick.Token == "" || tick.MaxPrice <= 0 || tick.MinPrice <= 0 {
		return fmt.Errorf("invalid price tick: token=%q max=%d min=%d", tick.Token, tick.MaxPrice, tick.MinPrice)
	}
	return p.producer.Send(&tickMessage{topic: p.topic, tick: tick})
}

// Close 关闭发布器
func (p *TickPublisher) Close() error {
	return p.producer.Close()
}
