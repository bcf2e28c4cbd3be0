// Package mqtt provides MQTT client connectivity for the MyQ bridge.
//
// This package manages:
//   - Connection to the Gray Logic broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) on the bridge health topic
//   - Connection health monitoring
//
// # Architecture
//
// The bridge uses MQTT to exchange device state and commands with the
// Gray Logic core. The broker decouples the core from the vendor cloud.
//
//	Gray Logic Core ↔ MQTT Broker ↔ MyQ Bridge ↔ MyQ Cloud
//
// # Topic Scheme
//
// Flat bridge scheme: graylogic/{category}/{protocol}/{address}
//
//   - graylogic/command/myq/{serial}: door commands from the core
//   - graylogic/state/myq/{serial}: observed door state (retained)
//   - graylogic/ack/myq/{serial}: command acknowledgements
//   - graylogic/health/myq: bridge health (retained, LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, "myq")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeCommands("myq"), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
