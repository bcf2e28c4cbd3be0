// Package registry persists the bridge's view of adopted devices.
//
// A device enters the registry the first time it is seen in a vendor
// catalog fetch. The registry assigns it a ref (a UUID) which becomes
// the stable handle for all later updates: status value changes, remote
// id rebinding when the vendor reassigns numeric ids, and attention
// flags raised while a device is offline.
//
// The serial number is the durable vendor identity. Numeric device ids
// are treated as volatile and are only cached for command dispatch.
//
// Table creation is owned by this package; NewSQLiteRegistry runs the
// schema migration on startup.
package registry
