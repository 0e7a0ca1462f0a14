// Package usage publishes one event per served dashboard to Kafka for offline
// analysis of traffic and cache effectiveness. Publishing is fire-and-forget:
// when the queue is full the event is dropped, never the request.
package usage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
)

type Event struct {
	Dashboard string    `json:"dashboard"`
	Network   string    `json:"network"`
	Window    string    `json:"window"`
	Outcome   string    `json:"outcome"`
	ElapsedMS int64     `json:"elapsed_ms"`
	TS        time.Time `json:"ts"`
}

type Publisher struct {
	topic   string
	events  chan Event
	prod    sarama.AsyncProducer
	log     *slog.Logger
	dropped atomic.Int64
	stopped chan struct{}
}

func NewPublisher(brokers, topic string, queueSize int, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(split(brokers), cfg)
	if err != nil {
		return nil, fmt.Errorf("usage producer: %w", err)
	}
	return newWithProducer(prod, topic, queueSize, logger), nil
}

func newWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Publisher{
		topic:   topic,
		events:  make(chan Event, queueSize),
		prod:    prod,
		log:     logger,
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.log.Warn("usage event marshal", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				p.log.Warn("usage producer", "err", err)
			}
		}
	}()

	return p
}

// Publish enqueues ev without blocking; a full queue drops it.
func (p *Publisher) Publish(ev Event) {
	select {
	case p.events <- ev:
	default:
		p.dropped.Add(1)
	}
}

func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped

	if n := p.dropped.Load(); n > 0 {
		p.log.Warn("usage publisher dropped events", "count", n)
	}
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("close usage producer: %w", err)
	}
	return nil
}

func split(brokers string) []string {
	var out []string
	for b := range strings.SplitSeq(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
