// Package danfoss implements the Danfoss Air ventilation bridge for Gray Logic.
//
// It keeps one long-lived session with a ventilation unit, exposes the unit's
// readings as capabilities and forwards capability writes back to the unit.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────────────┐  Transport
//	│   Gray Logic    │   MQTT   │ Bridge ─► Controller    │◄──────────► Unit
//	│      Core       │◄────────►│    ▲          │         │
//	└─────────────────┘          │  Store ◄──────┘         │
//	                             └─────────────────────────┘
//
// # Components
//
//   - Controller: the session state machine. Owns the transport, translates
//     parameters, schedules recovery and serialises every transition on one
//     event loop goroutine.
//   - Translator: maps raw unit parameters to capability updates and
//     capability writes to unit commands.
//   - DebounceGuard: drops mode echoes for a window after a mode write.
//   - ReinitScheduler: holds at most one pending recovery attempt at a fixed delay.
//   - Bridge: the MQTT surface. Commands and settings in; retained state,
//     acks and health out.
//
// # Fan step
//
// The unit reports its fan step as 1-10; the capability carries it as 10-100.
// The fan step capability only exists while the unit is in manual mode.
//
// # Topics
//
//	graylogic/command/danfoss/{device_id}  Core → bridge   CommandMessage
//	graylogic/config/danfoss/{device_id}   Core → bridge   SettingsMessage
//	graylogic/ack/danfoss/{device_id}      bridge → Core   AckMessage
//	graylogic/state/danfoss/{device_id}    bridge → Core   StateMessage (retained)
//	graylogic/health/danfoss               bridge → Core   HealthMessage (retained, LWT)
package danfoss
