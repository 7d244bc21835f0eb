package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"custody/internal/config"
	"custody/internal/types"

	"github.com/segmentio/kafka-go"
	"github.com/zeromicro/go-zero/core/logx"
)

// Publisher forwards credited deposits to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, deposit *types.CreditedDeposit) error
	Close() error
}

// NewPublisher returns a Kafka publisher when brokers are configured and a
// logging publisher otherwise.
func NewPublisher(c config.KafkaConf) Publisher {
	if len(c.Brokers) == 0 {
		return logPublisher{}
	}
	return &kafkaPublisher{
		topic: c.Topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(c.Brokers...),
			Topic:        c.Topic,
			Balancer:     &kafka.Hash{}, // 同一用户的事件落到同一分区, 保证顺序
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 20 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
		},
	}
}

type kafkaPublisher struct {
	topic  string
	writer *kafka.Writer
}

func (p *kafkaPublisher) Publish(ctx context.Context, deposit *types.CreditedDeposit) error {
	value, err := json.Marshal(deposit)
	if err != nil {
		return fmt.Errorf("marshal deposit event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(deposit.UserId),
		Value: value,
		Time:  deposit.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("write to kafka topic %s: %w", p.topic, err)
	}
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

type logPublisher struct{}

func (logPublisher) Publish(ctx context.Context, deposit *types.CreditedDeposit) error {
	logx.WithContext(ctx).Infow("deposit credited",
		logx.Field("network", deposit.Network),
		logx.Field("address", deposit.Address),
		logx.Field("userId", deposit.UserId),
		logx.Field("txHash", deposit.TxHash),
		logx.Field("amount", deposit.Amount.String()),
		logx.Field("amountUsd", deposit.AmountUSD.StringFixed(2)),
	)
	return nil
}

func (logPublisher) Close() error { return nil }
