// Package bridge connects the device mirror to the MQTT broker.
//
// It publishes every mirrored attribute change to a retained state topic,
// keeps per-device availability topics current, and turns incoming set
// commands into mirror writes:
//
//	kasa/state/<device>[/<sub>]/<attribute>   retained value (outbound)
//	kasa/availability/<device>                "online" / "offline" (outbound)
//	kasa/set/<device>[/<sub>]/<attribute>     JSON value (inbound)
//
// Command payloads are bare JSON scalars: true, false, or a number.
// Invalid topics and payloads are logged and dropped; a misbehaving
// publisher cannot stall the mirror.
package bridge
