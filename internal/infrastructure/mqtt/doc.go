// Package mqtt provides MQTT client connectivity for the patching
// controller.
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
// MQTT is the controller's external command and status surface.
// Operator software sends commands on autopatch/command/{action} and
// receives per-unit status and attempt results; the broker decouples
// the rig-side controller from whatever frontends observe it.
//
//	Operator UI / scripts ↔ MQTT Broker ↔ Patching controller
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
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish unit status (retained)
//	topic := mqtt.Topics{}.UnitStatus("pip1")
//	client.Publish(topic, []byte(`{"state":"idle"}`), 1, true)
package mqtt
