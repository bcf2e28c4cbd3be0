// Package bridge orchestrates the MyQ cloud to MQTT translation.
//
// # Architecture
//
//	MQTT broker                        MyQ cloud
//	     |                                  |
//	     |  graylogic/command/myq/{serial}  |
//	     v                                  v
//	+---------+    commands     +--------------------+
//	|  Bridge |---------------->|  myq.Client        |
//	|         |<----------------|  (HTTPS polling)   |
//	+---------+    catalog      +--------------------+
//	     |
//	     |  graylogic/state/myq/{serial}   (retained)
//	     |  graylogic/ack/myq/{serial}
//	     |  graylogic/health/myq           (retained)
//	     v
//
// # Responsibilities
//
//   - Poller: drives periodic catalog syncs with a re-armed single-shot
//     timer, plus a watchdog that forces a sync when fetches stop
//     landing.
//   - Reconciler: maps catalog snapshots onto the device registry,
//     adopting new doors by serial number and raising attention flags
//     on offline transitions.
//   - HealthReporter: publishes retained health status combining the
//     MQTT connection and the cloud session state.
//   - Bridge: wires the above together, dispatches open/close commands
//     to the cloud, and publishes acks and retained state updates.
//
// # Command flow
//
// A command is acked "accepted" once handed to the cloud; the actual
// door movement shows up via the state topic after the post-command
// resync. There is no end-to-end confirmation in the vendor protocol.
//
// # Thread safety
//
// All exported types are safe for concurrent use.
package bridge
