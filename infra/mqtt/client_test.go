package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/agrimarket/alloc/core/model"
)

type mockToken struct{ err error }

func (t *mockToken) Wait() bool                       { return true }
func (t *mockToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *mockToken) Error() error                     { return t.err }
func (t *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	payload []byte
}

type mockClient struct {
	mu           sync.Mutex
	connected    bool
	disconnected bool
	subscribed   string
	handler      paho.MessageHandler
	publishes    []published
	publishErrs  int // fail this many publishes
}

func (m *mockClient) IsConnected() bool { return m.connected }

func (m *mockClient) Connect() paho.Token {
	m.connected = true
	return &mockToken{}
}

func (m *mockClient) Disconnect(quiesce uint) {
	m.disconnected = true
	m.connected = false
}

func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErrs > 0 {
		m.publishErrs--
		return &mockToken{err: errors.New("broker unavailable")}
	}
	m.publishes = append(m.publishes, published{topic: topic, payload: payload.([]byte)})
	return &mockToken{}
}

func (m *mockClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	m.subscribed = topic
	m.handler = callback
	return &mockToken{}
}

type mockMessage struct{ payload []byte }

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return "market/orders/request" }
func (m mockMessage) MessageID() uint16 { return 1 }
func (m mockMessage) Payload() []byte   { return m.payload }
func (m mockMessage) Ack()              {}

type stubAllocator struct {
	plan model.AllocationPlan
	err  error
	got  model.OrderLine
}

func (s *stubAllocator) Allocate(ctx context.Context, order model.OrderLine) (model.AllocationPlan, error) {
	s.got = order
	return s.plan, s.err
}

func withMockClient(t *testing.T) *mockClient {
	t.Helper()
	mc := &mockClient{}
	orig := newMQTTClient
	newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return mc }
	t.Cleanup(func() { newMQTTClient = orig })
	return mc
}

func newTestConnector(t *testing.T, alloc Allocator, cfg Config) (*Connector, *mockClient) {
	t.Helper()
	mc := withMockClient(t)
	conn, err := NewConnector(cfg, alloc)
	if err != nil {
		t.Fatalf("connector: %v", err)
	}
	return conn, mc
}

func TestOnOrderPublishesPlan(t *testing.T) {
	alloc := &stubAllocator{plan: model.AllocationPlan{ID: "p1", OrderID: "o1", Status: model.Fulfilled}}
	conn, mc := newTestConnector(t, alloc, Config{Broker: "tcp://localhost:1883"})

	req := orderRequest{
		RequestID: "r1",
		Order:     model.OrderLine{ID: "o1", BuyerID: "b1", ProductID: "tomato", Quantity: 10},
	}
	body, _ := json.Marshal(req)
	conn.onOrder(nil, mockMessage{payload: body})

	if alloc.got.ID != "o1" {
		t.Fatalf("allocator saw order %q, want o1", alloc.got.ID)
	}
	if len(mc.publishes) != 1 {
		t.Fatalf("publishes = %d, want 1", len(mc.publishes))
	}
	if mc.publishes[0].topic != "market/orders/plan" {
		t.Errorf("topic = %s", mc.publishes[0].topic)
	}
	var resp planResponse
	if err := json.Unmarshal(mc.publishes[0].payload, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RequestID != "r1" || resp.Plan.ID != "p1" || resp.Error != "" {
		t.Errorf("response = %+v", resp)
	}
}

func TestOnOrderReportsAllocationError(t *testing.T) {
	alloc := &stubAllocator{err: errors.New("inventory unreachable")}
	conn, mc := newTestConnector(t, alloc, Config{Broker: "tcp://localhost:1883"})

	body, _ := json.Marshal(orderRequest{RequestID: "r2", Order: model.OrderLine{ID: "o2", BuyerID: "b", ProductID: "p", Quantity: 5}})
	conn.onOrder(nil, mockMessage{payload: body})

	if len(mc.publishes) != 1 {
		t.Fatalf("publishes = %d, want 1", len(mc.publishes))
	}
	var resp planResponse
	if err := json.Unmarshal(mc.publishes[0].payload, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == "" {
		t.Errorf("error responses must carry the failure, got %+v", resp)
	}
}

func TestOnOrderIgnoresMalformedPayload(t *testing.T) {
	alloc := &stubAllocator{}
	conn, mc := newTestConnector(t, alloc, Config{Broker: "tcp://localhost:1883"})

	conn.onOrder(nil, mockMessage{payload: []byte("{broken")})
	if len(mc.publishes) != 0 {
		t.Errorf("malformed requests must not produce a response, got %d", len(mc.publishes))
	}
}

func TestOnOrderAssignsRequestID(t *testing.T) {
	alloc := &stubAllocator{plan: model.AllocationPlan{ID: "p1"}}
	conn, mc := newTestConnector(t, alloc, Config{Broker: "tcp://localhost:1883"})

	body, _ := json.Marshal(orderRequest{Order: model.OrderLine{BuyerID: "b", ProductID: "p", Quantity: 5}})
	conn.onOrder(nil, mockMessage{payload: body})

	var resp planResponse
	if err := json.Unmarshal(mc.publishes[0].payload, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RequestID == "" {
		t.Errorf("missing request ids must be generated")
	}
	if alloc.got.ID == "" {
		t.Errorf("order id must default to the request id")
	}
}

func TestPublishRetriesWithBackoff(t *testing.T) {
	alloc := &stubAllocator{plan: model.AllocationPlan{ID: "p1"}}
	conn, mc := newTestConnector(t, alloc, Config{Broker: "tcp://localhost:1883", BackoffMS: 1})
	mc.publishErrs = 2

	body, _ := json.Marshal(orderRequest{RequestID: "r3", Order: model.OrderLine{ID: "o3", BuyerID: "b", ProductID: "p", Quantity: 5}})
	conn.onOrder(nil, mockMessage{payload: body})

	if len(mc.publishes) != 1 {
		t.Errorf("publish should succeed after retries, got %d publishes", len(mc.publishes))
	}
}

func TestConnectorAppliesTopicDefaults(t *testing.T) {
	alloc := &stubAllocator{}
	conn, _ := newTestConnector(t, alloc, Config{Broker: "tcp://localhost:1883"})
	if conn.cfg.OrderTopic != "market/orders/request" {
		t.Errorf("order topic default = %s", conn.cfg.OrderTopic)
	}
	if conn.cfg.PlanTopic != "market/orders/plan" {
		t.Errorf("plan topic default = %s", conn.cfg.PlanTopic)
	}
}

func TestLWTConfigured(t *testing.T) {
	cfg := Config{Broker: "tcp://localhost:1883", LWTTopic: "market/allocator/status", LWTPayload: "offline", LWTQoS: 1}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		t.Fatalf("NewClientOptions: %v", err)
	}
	if !opts.WillEnabled {
		t.Errorf("expected will to be enabled")
	}
	if opts.WillTopic != "market/allocator/status" || string(opts.WillPayload) != "offline" {
		t.Errorf("will = %s %s", opts.WillTopic, opts.WillPayload)
	}
}

func TestCloseDisconnects(t *testing.T) {
	alloc := &stubAllocator{}
	conn, mc := newTestConnector(t, alloc, Config{Broker: "tcp://localhost:1883"})
	conn.Close()
	if !mc.disconnected {
		t.Errorf("expected Disconnect() to be called")
	}
}

func TestLoadTLSConfigRequiresPaths(t *testing.T) {
	cfg := Config{UseTLS: true}
	if _, err := cfg.LoadTLSConfig(); err == nil {
		t.Errorf("missing cert paths must be rejected")
	}
}
