package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/studybuddy/tutor-backend/internal/models"
)

// TranscriptPublisher 将学习记录发布到Kafka
type TranscriptPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewProducerConfig 同步生产者配置
func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second
	return config
}

// NewTranscriptPublisher 连接broker并创建发布者
func NewTranscriptPublisher(brokers []string, topic string, logger *zap.Logger) (*TranscriptPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}
	p := NewTranscriptPublisherWithProducer(producer, topic, logger)
	p.logger.Info("Kafka生产者初始化成功", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return p, nil
}

// NewTranscriptPublisherWithProducer 使用已有的生产者
func NewTranscriptPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *TranscriptPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptPublisher{producer: producer, topic: topic, logger: logger}
}

// Publish 发送一条学习记录，key为用户ID
func (p *TranscriptPublisher) Publish(ctx context.Context, entry models.TranscriptEntry) error {
	if p == nil || p.producer == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("序列化学习记录失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(entry.UserID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("user_id"), Value: []byte(entry.UserID)},
			{Key: []byte("topic"), Value: []byte(entry.Metadata.DetectedTopic)},
		},
		Timestamp: entry.Timestamp,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送学习记录失败: %w", err)
	}

	p.logger.Debug("Kafka消息发送成功",
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("transcript_id", entry.ID))
	return nil
}

// Topic 目标topic
func (p *TranscriptPublisher) Topic() string {
	return p.topic
}

// Close 关闭生产者
func (p *TranscriptPublisher) Close() error {
	if p != nil && p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
