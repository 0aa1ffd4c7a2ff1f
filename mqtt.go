package hwkit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/pkg/errors"

	"github.com/hubertat/hwkit/mqtt"
	"github.com/hubertat/hwkit/telemetry"
)

// pumpCommand triggers a pump from MQTT. The payload is either a duration
// ("2500ms", "3s") or a volume ("25ml").
type pumpCommand struct {
	topic string
	pump  *Pump
}

func (pc *pumpCommand) MqttSubscribeTopic() string {
	return pc.topic
}

func (pc *pumpCommand) MqttHandle(pub *paho.Publish) {
	d, ml, err := parseDispense(string(pub.Payload))
	if err != nil {
		pc.pump.logger.Warn("invalid mqtt dispense command", "payload", string(pub.Payload), "err", err)
		return
	}
	if _, err := pc.pump.Dispense(d, ml); err != nil {
		pc.pump.logger.Error("mqtt dispense failed", "err", err)
	}
}

func parseDispense(payload string) (time.Duration, uint32, error) {
	payload = strings.TrimSpace(strings.ToLower(payload))
	if strings.HasSuffix(payload, "ml") {
		ml, err := strconv.ParseUint(strings.TrimSuffix(payload, "ml"), 10, 32)
		if err != nil || ml == 0 {
			return 0, 0, errors.Errorf("invalid volume %q", payload)
		}
		return 0, uint32(ml), nil
	}

	d, err := time.ParseDuration(payload)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "invalid duration %q", payload)
	}
	return d, 0, nil
}

func (hk *HwKit) mqttPrefix() string {
	prefix := strings.TrimSuffix(hk.MqttPrefix, "/")
	if len(prefix) == 0 {
		prefix = hk.kitName()
	}
	return prefix
}

// InitMqtt connects to the broker, adds an MQTT sink for sensor readings and
// subscribes <prefix>/pump/<name>/dispense for every pump.
func (hk *HwKit) InitMqtt(ctx context.Context) (err error) {
	if len(hk.MqttBroker) == 0 {
		return errors.New("mqtt broker not set")
	}

	mc, err := mqtt.NewMqttClient(hk.MqttBroker, hk.kitName())
	if err != nil {
		return errors.Wrap(err, "failed to create mqtt client")
	}
	hk.mqttClient = mc

	handlers := []mqtt.MqttHandler{}
	for _, p := range hk.Pumps {
		handlers = append(handlers, &pumpCommand{
			topic: hk.mqttPrefix() + "/pump/" + p.Name + "/dispense",
			pump:  p,
		})
	}

	if err = mc.Connect(ctx, handlers); err != nil {
		return errors.Wrap(err, "failed to connect to mqtt broker")
	}

	hk.sinks = append(hk.sinks, &telemetry.MqttSink{
		Publisher: mc,
		Prefix:    hk.mqttPrefix() + "/soil",
	})
	return nil
}
