// Package mqtt connects the allocation engine to the marketplace message
// broker: order requests arrive on a request topic and finished plans are
// published on a plan topic.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/agrimarket/alloc/core/logger"
	"github.com/agrimarket/alloc/core/model"
	infralog "github.com/agrimarket/alloc/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT connector.
type Config struct {
	Enabled    bool        `json:"enabled"`
	Broker     string      `json:"broker"`
	ClientID   string      `json:"client_id"`
	Username   string      `json:"username"`
	Password   string      `json:"password"`
	OrderTopic string      `json:"order_topic"`
	PlanTopic  string      `json:"plan_topic"`
	UseTLS     bool        `json:"use_tls"`
	ClientCert string      `json:"client_cert"`
	ClientKey  string      `json:"client_key"`
	CABundle   string      `json:"ca_bundle"`
	QoS        byte        `json:"qos"`
	LWTTopic   string      `json:"lwt_topic"`
	LWTPayload string      `json:"lwt_payload"`
	LWTQoS     byte        `json:"lwt_qos"`
	LWTRetain  bool        `json:"lwt_retain"`
	MaxRetries int         `json:"max_retries"`
	BackoffMS  int         `json:"backoff_ms"`
	TLSConfig  *tls.Config `json:"-"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "alloc-engine"
	}
	if c.OrderTopic == "" {
		c.OrderTopic = "market/orders/request"
	}
	if c.PlanTopic == "" {
		c.PlanTopic = "market/orders/plan"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS == 0 {
		c.BackoffMS = 100
	}
}

// Allocator is the single operation the connector needs from the engine.
type Allocator interface {
	Allocate(ctx context.Context, order model.OrderLine) (model.AllocationPlan, error)
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Connector subscribes to the order topic and publishes allocation plans.
type Connector struct {
	cli       pahoClient
	cfg       Config
	allocator Allocator
	log       logger.Logger
}

// NewConnector connects to the broker and subscribes to the order topic.
func NewConnector(cfg Config, allocator Allocator) (*Connector, error) {
	cfg.SetDefaults()
	log := infralog.New("mqtt-connector")
	conn := &Connector{cfg: cfg, allocator: allocator, log: log}

	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if token := c.Subscribe(cfg.OrderTopic, cfg.QoS, conn.onOrder); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	conn.cli = c
	return conn, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// orderRequest is the wire format of one order line request.
type orderRequest struct {
	RequestID string          `json:"request_id"`
	Order     model.OrderLine `json:"order"`
	TimeoutMS int             `json:"timeout_ms"`
}

// planResponse is the wire format of the published outcome.
type planResponse struct {
	RequestID string               `json:"request_id"`
	Plan      model.AllocationPlan `json:"plan,omitempty"`
	Error     string               `json:"error,omitempty"`
	Timestamp int64                `json:"timestamp"`
}

func (c *Connector) onOrder(_ paho.Client, msg paho.Message) {
	var req orderRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		c.log.Errorf("failed to decode order request: %v", err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.Order.ID == "" {
		req.Order.ID = req.RequestID
	}

	ctx := context.Background()
	if req.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	resp := planResponse{RequestID: req.RequestID, Timestamp: time.Now().UnixMilli()}
	plan, err := c.allocator.Allocate(ctx, req.Order)
	if err != nil {
		c.log.Errorf("allocation of request %s failed: %v", req.RequestID, err)
		resp.Error = err.Error()
	} else {
		resp.Plan = plan
	}
	c.publishPlan(resp)
}

func (c *Connector) publishPlan(resp planResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		c.log.Errorf("failed to encode plan response: %v", err)
		return
	}
	backoff := time.Duration(c.cfg.BackoffMS) * time.Millisecond
	var publishErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		token := c.cli.Publish(c.cfg.PlanTopic, c.cfg.QoS, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			c.log.Infof("published plan for request %s", resp.RequestID)
			return
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	c.log.Errorf("failed to publish plan for request %s: %v", resp.RequestID, publishErr)
}

// Close disconnects from the broker.
func (c *Connector) Close() {
	if c.cli != nil && c.cli.IsConnected() {
		c.cli.Disconnect(250)
	}
}
