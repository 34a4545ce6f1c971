// Package mqtt connects the Danfoss Air bridge to the site MQTT broker.
//
// The bridge receives capability commands and settings updates on
// graylogic/command and graylogic/config, and publishes retained state,
// acknowledgements and health back:
//
//	Automation / UI <-> MQTT broker <-> Danfoss bridge <-> ventilation unit
//
// A retained Last Will marks the bridge offline if it crashes. Enable
// broker.tls outside a trusted LAN.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeCommand("danfoss", deviceID), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
package mqtt
