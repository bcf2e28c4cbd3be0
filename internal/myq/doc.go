// Package myq implements the MyQ cloud client for the garage door bridge.
//
// This package talks to the vendor cloud service used by LiftMaster,
// Chamberlain and Craftsman garage door openers. It owns the cloud
// session, the device catalog, and door commands.
//
// # Architecture
//
// The client sits between the bridge orchestrator and the vendor cloud:
//
//	┌─────────────────┐          ┌─────────────────┐
//	│     Bridge      │   calls  │   MyQ Client    │   HTTPS
//	│  (poll/command) │─────────►│   (this pkg)    │─────────► MyQ Cloud
//	└─────────────────┘          └─────────────────┘
//
// # Key Responsibilities
//
//   - Authenticate and hold the opaque security token
//   - Throttle login attempts to protect the account from lockout
//   - Fetch and filter the door operator catalog
//   - Recover transparently from session expiry (vendor code -3333)
//   - Send open/close commands
//   - Expose operational statistics for health reporting
//
// # Session Lifecycle
//
// One Client owns exactly one session. Credential changes mean building a
// new Client. The session token is acquired lazily: the first catalog
// fetch triggers a login via the vendor's not-logged-in return code.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use from multiple
// goroutines.
package myq
