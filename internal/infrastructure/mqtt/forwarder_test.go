package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tankutility-bridge/internal/tankutility"
)

type publishedMsg struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

// fakePublisher records publishes and can fail topics with a given suffix.
type fakePublisher struct {
	mu       sync.Mutex
	messages []publishedMsg
	failOn   string
}

func (p *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn != "" && strings.HasSuffix(topic, p.failOn) {
		return ErrNotConnected
	}
	p.messages = append(p.messages, publishedMsg{topic: topic, payload: string(payload), qos: qos, retained: retained})
	return nil
}

func (p *fakePublisher) byTopic() map[string]publishedMsg {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]publishedMsg, len(p.messages))
	for _, m := range p.messages {
		out[m.topic] = m
	}
	return out
}

func TestForwarder_PublishesSensors(t *testing.T) {
	pub := &fakePublisher{}
	fwd := NewForwarder(pub, ForwarderConfig{QoS: 1})

	rec := tankutility.Record{
		tankutility.FieldTank:        42.46,
		tankutility.FieldTemperature: 68.0,
		tankutility.FieldBattery:     "good",
		tankutility.FieldCapacity:    500.0,
		tankutility.FieldTimeISO:     "2026-03-01T12:00:00Z",
	}
	if err := fwd.OnRecord(context.Background(), "abc123", "House", rec); err != nil {
		t.Fatalf("OnRecord() error = %v", err)
	}

	got := pub.byTopic()
	want := map[string]string{
		"homeassistant/generac_tank_utility/abc123/tank":        "42.5",
		"homeassistant/generac_tank_utility/abc123/temperature": "68",
		"homeassistant/generac_tank_utility/abc123/battery":     "good",
	}
	for topic, payload := range want {
		msg, ok := got[topic]
		if !ok {
			t.Errorf("no message on %s", topic)
			continue
		}
		if msg.payload != payload {
			t.Errorf("%s payload = %q, want %q", topic, msg.payload, payload)
		}
		if msg.retained {
			t.Errorf("%s retained = true, want false", topic)
		}
		if msg.qos != 1 {
			t.Errorf("%s qos = %d, want 1", topic, msg.qos)
		}
	}

	state, ok := got["homeassistant/generac_tank_utility/abc123/state"]
	if !ok {
		t.Fatal("no state document published")
	}
	if !state.retained {
		t.Error("state document retained = false, want true")
	}
	var doc DeviceState
	if err := json.Unmarshal([]byte(state.payload), &doc); err != nil {
		t.Fatalf("state payload is not JSON: %v", err)
	}
	if doc.Name != "House" || doc.Tank == nil || *doc.Tank != 42.5 || doc.LowFuel {
		t.Errorf("state document = %+v", doc)
	}
	if doc.Attributes["last_update"] != "2026-03-01T12:00:00Z" {
		t.Errorf("attributes = %v, want last_update", doc.Attributes)
	}
}

func TestForwarder_SkipsMissingSensors(t *testing.T) {
	pub := &fakePublisher{}
	fwd := NewForwarder(pub, ForwarderConfig{Topics: Topics{Prefix: "tanks"}})

	if err := fwd.OnRecord(context.Background(), "abc123", "House", tankutility.Record{tankutility.FieldTank: 15.0}); err != nil {
		t.Fatalf("OnRecord() error = %v", err)
	}

	got := pub.byTopic()
	if len(got) != 2 {
		t.Errorf("published %d messages, want tank + state: %v", len(got), got)
	}
	if _, ok := got["tanks/abc123/temperature"]; ok {
		t.Error("temperature published although absent")
	}

	var doc DeviceState
	_ = json.Unmarshal([]byte(got["tanks/abc123/state"].payload), &doc)
	if doc.Temperature != nil {
		t.Errorf("state temperature = %v, want omitted", *doc.Temperature)
	}
	if !doc.LowFuel {
		t.Error("state low_fuel = false for 15%")
	}
}

func TestForwarder_RetainValues(t *testing.T) {
	pub := &fakePublisher{}
	fwd := NewForwarder(pub, ForwarderConfig{RetainValues: true})

	_ = fwd.OnRecord(context.Background(), "abc123", "House", tankutility.Record{tankutility.FieldTank: 80.0})

	if msg := pub.byTopic()["homeassistant/generac_tank_utility/abc123/tank"]; !msg.retained {
		t.Error("tank value retained = false with RetainValues")
	}
}

func TestForwarder_ContinuesAfterFailure(t *testing.T) {
	pub := &fakePublisher{failOn: "/tank"}
	fwd := NewForwarder(pub, ForwarderConfig{})

	rec := tankutility.Record{tankutility.FieldTank: 80.0, tankutility.FieldTemperature: 50.0}
	err := fwd.OnRecord(context.Background(), "abc123", "House", rec)

	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("OnRecord() error = %v, want ErrNotConnected", err)
	}
	got := pub.byTopic()
	if _, ok := got["homeassistant/generac_tank_utility/abc123/temperature"]; !ok {
		t.Error("temperature not published after tank failure")
	}
	if _, ok := got["homeassistant/generac_tank_utility/abc123/state"]; !ok {
		t.Error("state not published after tank failure")
	}
}

func TestNewDeviceState_Battery(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewDeviceState("abc123", "House", tankutility.Record{tankutility.FieldBattery: 12.0}, now)

	if s.Battery != "12" || !s.LowBattery {
		t.Errorf("battery = %q low=%v, want 12 low=true", s.Battery, s.LowBattery)
	}
	if s.PublishedAt != "2026-03-01T12:00:00Z" {
		t.Errorf("PublishedAt = %q", s.PublishedAt)
	}
}
