// Package telemetry relays a small set of engine lifecycle events to an
// external observer over MQTT. It is optional and inert: constructing a
// MQTTEventBridge with an empty broker URL is a deliberate no-op, so
// importing this package never requires a broker to be running
// (SPEC_FULL.md §6.2).
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/magnopus-opensource/csp-realtime/common"
)

// EventKind enumerates the lifecycle events the bridge relays.
type EventKind string

const (
	EventEntityCreated   EventKind = "entity_created"
	EventEntityDestroyed EventKind = "entity_destroyed"
	EventLeaderChanged   EventKind = "leader_changed"
	EventScriptError     EventKind = "script_error"
)

// Event is the JSON payload published to csp/<spaceId>/events.
type Event struct {
	Kind      EventKind `json:"kind"`
	SpaceID   string    `json:"spaceId"`
	EntityID  uint64    `json:"entityId,omitempty"`
	LeaderID  uint64    `json:"leaderId,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// MQTTEventBridge publishes Event values as retained MQTT messages. A bridge
// built with an empty broker URL accepts every Publish* call as a no-op, so
// callers never need to branch on whether telemetry is configured.
type MQTTEventBridge struct {
	spaceID string
	log     common.Logger
	client  mqtt.Client
}

// New constructs a bridge. If brokerURL is empty, the returned bridge is
// inert and never dials out. clientID, if empty, is derived from spaceID.
func New(brokerURL, clientID, spaceID string, log common.Logger) *MQTTEventBridge {
	if log == nil {
		log = common.DefaultLogger()
	}
	b := &MQTTEventBridge{spaceID: spaceID, log: log}
	if brokerURL == "" {
		return b
	}
	if clientID == "" {
		clientID = fmt.Sprintf("csp-realtime-%s", spaceID)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(5 * time.Second)

	b.client = mqtt.NewClient(opts)
	if token := b.client.Connect(); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("telemetry: MQTT connect failed, events will be dropped: %v", token.Error())
	}
	return b
}

// Enabled reports whether the bridge was configured with a broker.
func (b *MQTTEventBridge) Enabled() bool { return b.client != nil }

// SetSpaceID updates the space the bridge publishes events for. Callers
// construct a bridge before the space is known (at engine setup) and fill
// this in once FetchAllEntitiesAndPopulateBuffers learns it.
func (b *MQTTEventBridge) SetSpaceID(spaceID string) { b.spaceID = spaceID }

func (b *MQTTEventBridge) publish(ev Event) {
	if b.client == nil {
		return
	}
	ev.SpaceID = b.spaceID
	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Printf("telemetry: failed to marshal event: %v", err)
		return
	}
	topic := fmt.Sprintf("csp/%s/events", b.spaceID)
	token := b.client.Publish(topic, 1, true, payload)
	go func() {
		if token.WaitTimeout(2*time.Second) && token.Error() != nil {
			b.log.Printf("telemetry: publish to %s failed: %v", topic, token.Error())
		}
	}()
}

func (b *MQTTEventBridge) PublishEntityCreated(entityID uint64) {
	b.publish(Event{Kind: EventEntityCreated, EntityID: entityID, Timestamp: time.Now().Unix()})
}

func (b *MQTTEventBridge) PublishEntityDestroyed(entityID uint64) {
	b.publish(Event{Kind: EventEntityDestroyed, EntityID: entityID, Timestamp: time.Now().Unix()})
}

func (b *MQTTEventBridge) PublishLeaderChanged(leaderID uint64) {
	b.publish(Event{Kind: EventLeaderChanged, LeaderID: leaderID, Timestamp: time.Now().Unix()})
}

func (b *MQTTEventBridge) PublishScriptError(entityID uint64, message string) {
	b.publish(Event{Kind: EventScriptError, EntityID: entityID, Message: message, Timestamp: time.Now().Unix()})
}

// Close disconnects the underlying MQTT client, if any.
func (b *MQTTEventBridge) Close() {
	if b.client != nil {
		b.client.Disconnect(250)
	}
}
