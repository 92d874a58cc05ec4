// Package searchevents publishes search analytics events to Kafka without blocking
// the request path.
package searchevents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
)

type Event struct {
	Query    string    `json:"query"`
	Areas    int       `json:"areas"`
	SubAreas int       `json:"sub_areas"`
	Venues   int       `json:"venues"`
	Filters  string    `json:"filters,omitempty"`
	Partial  bool      `json:"partial,omitempty"`
	TS       time.Time `json:"ts"`
}

type Publisher struct {
	topic   string
	log     *slog.Logger
	events  chan Event
	prod    sarama.AsyncProducer
	stopped chan struct{}
	dropped atomic.Uint64
}

func NewPublisher(brokers []string, topic string, queueSize int, log *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("searchevents: create async producer: %w", err)
	}
	return newPublisher(prod, topic, queueSize, log), nil
}

func newPublisher(prod sarama.AsyncProducer, topic string, queueSize int, log *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{
		topic:   topic,
		log:     log.With("component", "searchevents"),
		events:  make(chan Event, queueSize),
		prod:    prod,
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.log.Warn("marshal search event", "err", err)
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
				p.log.Warn("search event producer error", "err", err)
			}
		}
	}()
	return p
}

// Publish enqueues ev; a full queue drops it
func (p *Publisher) Publish(ev Event) {
	if p == nil {
		return
	}
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	select {
	case p.events <- ev:
	default:
		p.dropped.Add(1)
	}
}

func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("searchevents: close producer: %w", err)
	}
	return nil
}
