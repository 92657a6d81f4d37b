// Package mqtt provides MQTT client connectivity for the Kasa bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The bridge publishes mirrored device state to retained topics and
// accepts commands on set topics. Home-automation consumers subscribe
// to state topics and publish to set topics; the broker decouples them
// from the bridge process.
//
//	Consumers <-> MQTT Broker <-> Kasa Bridge <-> Kasa sidecar <-> devices
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all incoming commands
//	err = client.Subscribe(mqtt.Topics{}.AllSetCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish retained device state
//	topic := mqtt.Topics{}.DeviceState("8006ABCD", "state")
//	client.Publish(topic, []byte(`true`), 1, true)
package mqtt
