package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MichaelCWarren/homebridge-kasa-python/internal/fleet"
	"github.com/MichaelCWarren/homebridge-kasa-python/internal/infrastructure/mqtt"
)

const (
	// commandTimeout bounds how long one inbound command may occupy the
	// mirror, parked waits included.
	commandTimeout = 30 * time.Second

	// defaultAvailabilityInterval is how often device availability topics
	// are reconciled against lifecycle state.
	defaultAvailabilityInterval = 10 * time.Second

	topicSegmentsDevice = 4
	topicSegmentsSub    = 5
)

// Mirror is the device-mirror surface the bridge drives.
// Satisfied by fleet.Fleet.
type Mirror interface {
	SetValue(ctx context.Context, id, subID string, attr fleet.Attribute, value any) error
	Subscribe() (<-chan fleet.Change, func())
	Handles() []*fleet.Handle
}

// MessageClient is the broker surface the bridge needs.
// Satisfied by mqtt.Client.
type MessageClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger is the logging surface the bridge needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Bridge.
type Options struct {
	Mirror Mirror
	Client MessageClient
	Logger Logger

	// QoS for all published and subscribed messages. Default 1.
	QoS byte

	// AvailabilityInterval is how often availability topics are
	// reconciled. Default 10s.
	AvailabilityInterval time.Duration
}

// Bridge forwards mirror changes to MQTT and broker commands to the mirror.
type Bridge struct {
	mirror       Mirror
	client       MessageClient
	logger       Logger
	qos          byte
	availability time.Duration
	topics       mqtt.Topics

	// lastAvailability tracks the most recently published availability per
	// device so the reconcile loop publishes transitions only. Accessed
	// from the Run goroutine exclusively.
	lastAvailability map[string]bool
}

// New creates a bridge. Run must be called to start forwarding.
func New(opts Options) *Bridge {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.QoS == 0 {
		opts.QoS = 1
	}
	if opts.AvailabilityInterval <= 0 {
		opts.AvailabilityInterval = defaultAvailabilityInterval
	}
	return &Bridge{
		mirror:           opts.Mirror,
		client:           opts.Client,
		logger:           opts.Logger,
		qos:              opts.QoS,
		availability:     opts.AvailabilityInterval,
		lastAvailability: make(map[string]bool),
	}
}

// Run subscribes to the command topics and forwards mirror changes until
// ctx is cancelled or the mirror's change channel closes.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.client.Subscribe(b.topics.AllSetCommands(), b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribing to command topics: %w", err)
	}

	changes, cancel := b.mirror.Subscribe()
	defer cancel()

	ticker := time.NewTicker(b.availability)
	defer ticker.Stop()

	b.reconcileAvailability()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.reconcileAvailability()
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			b.publishChange(change)
		}
	}
}

// publishChange writes one attribute change to its retained state topic.
func (b *Bridge) publishChange(change fleet.Change) {
	var topic string
	if change.SubID == "" {
		topic = b.topics.DeviceState(change.DeviceID, string(change.Attribute))
	} else {
		topic = b.topics.SubDeviceState(change.DeviceID, change.SubID, string(change.Attribute))
	}

	payload, err := json.Marshal(change.Value)
	if err != nil {
		b.logger.Error("encoding state payload failed",
			"device", change.DeviceID, "attribute", string(change.Attribute), "error", err)
		return
	}

	if err := b.client.Publish(topic, payload, b.qos, true); err != nil {
		b.logger.Warn("publishing state failed", "topic", topic, "error", err)
	}
}

// reconcileAvailability publishes availability transitions for every
// registered device.
func (b *Bridge) reconcileAvailability() {
	for _, h := range b.mirror.Handles() {
		online := h.Lifecycle().Running()
		last, seen := b.lastAvailability[h.ID()]
		if seen && last == online {
			continue
		}

		payload := "offline"
		if online {
			payload = "online"
		}
		topic := b.topics.DeviceAvailability(h.ID())
		if err := b.client.Publish(topic, []byte(payload), b.qos, true); err != nil {
			b.logger.Warn("publishing availability failed", "topic", topic, "error", err)
			continue
		}
		b.lastAvailability[h.ID()] = online
	}
}

// handleCommand turns one inbound set message into a mirror write.
// Returned errors are logged by the MQTT client wrapper.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	deviceID, subID, attr, err := parseSetTopic(topic)
	if err != nil {
		b.logger.Warn("dropping command", "topic", topic, "error", err)
		return err
	}

	value, err := parseCommandPayload(payload)
	if err != nil {
		b.logger.Warn("dropping command", "topic", topic, "error", err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := b.mirror.SetValue(ctx, deviceID, subID, attr, value); err != nil {
		b.logger.Warn("command rejected",
			"device", deviceID, "sub", subID, "attribute", string(attr), "error", err)
		return err
	}

	b.logger.Debug("command accepted",
		"device", deviceID, "sub", subID, "attribute", string(attr))
	return nil
}

// parseSetTopic splits kasa/set/<device>[/<sub>]/<attribute>.
func parseSetTopic(topic string) (deviceID, subID string, attr fleet.Attribute, err error) {
	parts := strings.Split(topic, "/")
	if parts[0] != mqtt.TopicPrefix || len(parts) < 2 || parts[1] != "set" {
		return "", "", "", fmt.Errorf("%w: %q", ErrBadTopic, topic)
	}

	switch len(parts) {
	case topicSegmentsDevice:
		deviceID, attr = parts[2], fleet.Attribute(parts[3])
	case topicSegmentsSub:
		deviceID, subID, attr = parts[2], parts[3], fleet.Attribute(parts[4])
	default:
		return "", "", "", fmt.Errorf("%w: %q", ErrBadTopic, topic)
	}

	if deviceID == "" || attr == "" || (len(parts) == topicSegmentsSub && subID == "") {
		return "", "", "", fmt.Errorf("%w: %q", ErrBadTopic, topic)
	}
	return deviceID, subID, attr, nil
}

// parseCommandPayload decodes a bare JSON boolean or number.
func parseCommandPayload(payload []byte) (any, error) {
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadPayload, payload)
	}

	switch value.(type) {
	case bool, float64:
		return value, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadPayload, payload)
	}
}
