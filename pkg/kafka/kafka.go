package kafka

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
)

const DownloadsTopic = "catalog.downloads"

type Config struct {
	Addrs []string `yaml:"addrs" envconfig:"KAFKA_ADDRS"`
}

func (c Config) Enabled() bool { return len(c.Addrs) > 0 }

// DownloadEvent is published after each successful retrieval. Consumers treat
// it as an approximate popularity signal, not an exact ledger.
type DownloadEvent struct {
	BookID       int       `json:"bookId"`
	Title        string    `json:"title"`
	DownloadedAt time.Time `json:"downloadedAt"`
}

func NewProducer(cfg Config) (sarama.SyncProducer, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Producer.RequiredAcks = sarama.WaitForAll
	defaultCfg.Producer.Return.Successes = true

	return sarama.NewSyncProducer(cfg.Addrs, defaultCfg)
}

type Enqueuer interface {
	Enqueue(topic string, v any) error
}

// NewEnqueuer wraps a producer; a nil producer yields a no-op enqueuer so the
// service runs unchanged when no brokers are configured.
func NewEnqueuer(producer sarama.SyncProducer) Enqueuer {
	return &enqueuerImpl{producer: producer}
}

type enqueuerImpl struct {
	producer sarama.SyncProducer
}

func (q *enqueuerImpl) Enqueue(topic string, v any) error {
	if q.producer == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{Topic: topic, Value: sarama.StringEncoder(data)}
	if _, _, err = q.producer.SendMessage(msg); err != nil {
		return err
	}
	return nil
}
