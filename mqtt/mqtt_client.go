package mqtt

import (
	"context"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/pkg/errors"
)

const subscribeTimeoutSeconds = 15
const connectionTimeoutSeconds = 5
const publishTimeoutSeconds = 4

type MqttHandler interface {
	MqttHandle(pub *paho.Publish)
	MqttSubscribeTopic() string
}

type Publisher interface {
	Publish(topic string, payload []byte) error
}

type MqttClient struct {
	config autopaho.ClientConfig
	conn   *autopaho.ConnectionManager
	logger *log.Logger

	mu       sync.RWMutex
	handlers map[string]MqttHandler
}

func (mc *MqttClient) Publish(topic string, payload []byte) (err error) {
	if mc.conn == nil {
		return errors.New("mqtt client not connected")
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeoutSeconds*time.Second)
	defer cancel()

	_, err = mc.conn.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     1,
		Payload: payload,
	})
	return
}

func (mc *MqttClient) topics() (topics []string) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	for topic := range mc.handlers {
		topics = append(topics, topic)
	}
	return
}

func (mc *MqttClient) onConnUp(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
	mc.logger.Info("Connected to MQTT broker")

	subs := []paho.SubscribeOptions{}
	for _, topic := range mc.topics() {
		subs = append(subs, paho.SubscribeOptions{
			QoS:   1,
			Topic: topic,
		})
	}
	if len(subs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeoutSeconds*time.Second)
	defer cancel()

	_, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: subs,
	})
	if err != nil {
		mc.logger.Error("Failed to subscribe to topics", "err", err)
		return
	}
	mc.logger.Debug("subscribed mqtt", "subs", len(subs))
}

func (mc *MqttClient) onConnError(err error) {
	mc.logger.Error("Received Mqtt connection error", "err", err)
}

func (mc *MqttClient) onSrvDisconnect(d *paho.Disconnect) {
	mc.logger.Info("Disconnected from MQTT broker")
}

// route hands an incoming message to every handler whose filter matches.
func (mc *MqttClient) route(pr paho.PublishReceived) (bool, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	handled := false
	for filter, h := range mc.handlers {
		if TopicMatches(filter, pr.Packet.Topic) {
			h.MqttHandle(pr.Packet)
			handled = true
		}
	}
	if !handled {
		mc.logger.Debug("unhandled mqtt message", "topic", pr.Packet.Topic)
	}
	return handled, nil
}

func (mc *MqttClient) Connect(ctx context.Context, handlers []MqttHandler) (err error) {
	mc.mu.Lock()
	mc.handlers = make(map[string]MqttHandler)
	for _, h := range handlers {
		mc.logger.Debug("setting up mqtt topics config", "topic", h.MqttSubscribeTopic())
		mc.handlers[h.MqttSubscribeTopic()] = h
	}
	mc.mu.Unlock()

	mc.conn, err = autopaho.NewConnection(ctx, mc.config)
	if err != nil {
		return errors.Wrap(err, "failed to create mqtt connection")
	}

	awaitCtx, cancel := context.WithTimeout(ctx, connectionTimeoutSeconds*time.Second)
	defer cancel()

	err = mc.conn.AwaitConnection(awaitCtx)
	return errors.Wrap(err, "mqtt broker not reachable")
}

func (mc *MqttClient) Disconnect(ctx context.Context) error {
	mc.mu.Lock()
	mc.handlers = nil
	mc.mu.Unlock()

	if mc.conn == nil {
		return nil
	}
	return mc.conn.Disconnect(ctx)
}

// TopicMatches reports whether topic matches filter, honouring the + and #
// wildcards.
func TopicMatches(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")

	for i, level := range f {
		if level == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}

func NewMqttClient(broker string, clientId string) (mc *MqttClient, err error) {
	addr, err := url.Parse(broker)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid mqtt broker url %q", broker)
	}

	mc = &MqttClient{
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "mqtt",
			Level:  log.GetLevel(),
		}),
	}

	mc.config = autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{addr},
		KeepAlive:                     20,
		SessionExpiryInterval:         60,
		CleanStartOnInitialConnection: false,
		OnConnectionUp:                mc.onConnUp,
		OnConnectError:                mc.onConnError,
		ClientConfig: paho.ClientConfig{
			ClientID:           clientId,
			OnClientError:      mc.onConnError,
			OnServerDisconnect: mc.onSrvDisconnect,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				mc.route,
			},
		},
	}

	return
}
