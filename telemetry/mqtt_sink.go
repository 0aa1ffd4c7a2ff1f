package telemetry

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/hubertat/hwkit/mqtt"
	"github.com/pkg/errors"
)

const DefaultTopicPrefix = "hwkit/soil"

// MqttSink publishes each reading as JSON to <prefix>/<sensor>.
type MqttSink struct {
	Publisher mqtt.Publisher
	Prefix    string
}

func (ms *MqttSink) Topic(sensor string) string {
	prefix := strings.TrimSuffix(ms.Prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/" + sensor
}

func (ms *MqttSink) Publish(ctx context.Context, r Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "failed to marshal reading")
	}

	if err := ms.Publisher.Publish(ms.Topic(r.Sensor), payload); err != nil {
		return errors.Wrapf(err, "mqtt publish %s", r.Sensor)
	}
	return nil
}
