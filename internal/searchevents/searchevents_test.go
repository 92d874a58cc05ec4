package searchevents

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestPublisher_DeliversJSON(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, nil)
	var got Event
	prod.ExpectInputWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		if m.Topic != "search-events" {
			t.Errorf("topic=%q", m.Topic)
		}
		b, err := m.Value.Encode()
		if err != nil {
			return err
		}
		return json.Unmarshal(b, &got)
	})

	p := newPublisher(prod, "search-events", 4, nil)
	p.Publish(Event{Query: "tacos", Venues: 3})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got.Query != "tacos" || got.Venues != 3 || got.TS.IsZero() {
		t.Fatalf("event=%+v", got)
	}
}

func TestPublisher_FullQueueDrops(t *testing.T) {
	p := &Publisher{events: make(chan Event, 1)}
	p.Publish(Event{Query: "a", TS: time.Now()})
	p.Publish(Event{Query: "b"})
	p.Publish(Event{Query: "c"})
	if p.Dropped() != 2 {
		t.Fatalf("dropped=%d want 2", p.Dropped())
	}
}

func TestPublisher_NilIsNoop(t *testing.T) {
	var p *Publisher
	p.Publish(Event{Query: "x"})
}
