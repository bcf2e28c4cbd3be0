// Package history persists door state observations to InfluxDB.
//
// Each reconciled state change becomes one point in the door_state
// measurement, tagged by serial number. Session status transitions
// land in session_status. Writes are batched and non-blocking so a
// slow or unavailable InfluxDB never delays catalog polling.
//
// History is optional: when disabled in config, Connect returns
// ErrDisabled and the bridge runs without it.
package history
