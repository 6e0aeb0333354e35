package remote

import (
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTConfig configures an MQTTStore.
type MQTTConfig struct {
	Broker   string
	ClientID string

	// Prefix is prepended to every key, e.g. "vendo/machine-1/".
	Prefix string

	// BufferSize bounds the events held while offline.
	BufferSize int

	// Will is published retained on the status key if the connection drops.
	Will []byte
}

// MQTTStore maps the Store contract onto retained MQTT topics. Values are
// cached from subscriptions, so Pull never touches the network.
type MQTTStore struct {
	client paho.Client
	prefix string
	log    *zap.Logger

	mu    sync.Mutex
	cache map[string]string
	buf   *backlog
}

// NewMQTTStore connects to the broker. An unreachable broker is not an
// error: the client keeps retrying in the background and the store reports
// ErrUnavailable until it connects.
func NewMQTTStore(cfg MQTTConfig, log *zap.Logger) (*MQTTStore, error) {
	s := newMQTTStore(cfg, log)

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c paho.Client) { s.onConnect() }).
		SetConnectionLostHandler(func(c paho.Client, err error) {
			log.Warn("mqtt connection lost", zap.Error(err))
		})
	if cfg.Will != nil {
		opts.SetBinaryWill(s.topic(KeyStatus), cfg.Will, 1, true)
	}

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Warn("mqtt broker not reachable yet, retrying in background", zap.String("broker", cfg.Broker))
		return s, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return s, nil
}

func newMQTTStore(cfg MQTTConfig, log *zap.Logger) *MQTTStore {
	size := cfg.BufferSize
	if size <= 0 {
		size = 100
	}
	return &MQTTStore{
		prefix: cfg.Prefix,
		log:    log,
		cache:  make(map[string]string),
		buf:    newBacklog(size),
	}
}

func (s *MQTTStore) topic(key string) string {
	return s.prefix + key
}

// onConnect subscribes to the pulled keys and replays buffered events.
// It runs on every (re)connection.
func (s *MQTTStore) onConnect() {
	s.log.Info("mqtt connected")
	for _, filter := range []string{s.topic("inventory/+"), s.topic("command/+")} {
		token := s.client.Subscribe(filter, 1, func(c paho.Client, m paho.Message) {
			s.receive(m.Topic(), m.Payload())
		})
		if !token.WaitTimeout(5 * time.Second) {
			s.log.Warn("mqtt subscribe timeout", zap.String("topic", filter))
			continue
		}
		if err := token.Error(); err != nil {
			s.log.Warn("mqtt subscribe failed", zap.String("topic", filter), zap.Error(err))
		}
	}

	s.mu.Lock()
	queued := s.buf.takeAll()
	s.mu.Unlock()
	if len(queued) > 0 {
		s.log.Info("replaying buffered events", zap.Int("count", len(queued)))
	}
	for _, msg := range queued {
		if err := s.Publish(msg.key, msg.payload); err != nil {
			s.log.Warn("replay failed", zap.String("key", msg.key), zap.Error(err))
		}
	}
}

// receive caches a value delivered by a subscription.
func (s *MQTTStore) receive(topic string, payload []byte) {
	key := strings.TrimPrefix(topic, s.prefix)
	s.mu.Lock()
	s.cache[key] = strings.TrimSpace(string(payload))
	s.mu.Unlock()
}

// Connected reports whether the broker connection is open.
func (s *MQTTStore) Connected() bool {
	return s.client != nil && s.client.IsConnectionOpen()
}

// Pull returns the cached value for key.
func (s *MQTTStore) Pull(key string) (string, error) {
	if !s.Connected() {
		return "", ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache[key]
	if !ok {
		return "", ErrUnavailable
	}
	return v, nil
}

// Push publishes value retained under key.
func (s *MQTTStore) Push(key, value string) error {
	if !s.Connected() {
		return ErrUnavailable
	}
	token := s.client.Publish(s.topic(key), 1, true, []byte(value))
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("push %s: timeout: %w", key, ErrUnavailable)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("push %s: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()
	return nil
}

// Publish sends a non-retained event, or buffers it while offline.
func (s *MQTTStore) Publish(key string, payload []byte) error {
	if !s.Connected() {
		s.buffer(key, payload)
		return nil
	}
	token := s.client.Publish(s.topic(key), 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		s.buffer(key, payload)
		return nil
	}
	if err := token.Error(); err != nil {
		s.buffer(key, payload)
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

func (s *MQTTStore) buffer(key string, payload []byte) {
	s.mu.Lock()
	dropped := s.buf.add(pending{key: key, payload: payload})
	capacity := len(s.buf.slots)
	s.mu.Unlock()
	if dropped {
		s.log.Warn("event buffer full, dropping oldest", zap.Int("capacity", capacity))
	}
}

// Buffered returns the number of events waiting for a connection.
func (s *MQTTStore) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.size()
}

// Close disconnects from the broker.
func (s *MQTTStore) Close() error {
	if s.client != nil {
		s.client.Disconnect(1000)
	}
	return nil
}
