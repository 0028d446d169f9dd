// Package core defines the domain model shared by the storage and api layers:
// contact submissions, admin comments and the listing/statistics shapes the
// admin dashboard consumes.
//
// Authentication state (sessions, CSRF tokens, login counters) is not part of
// this package; it lives in package auth on top of storage.KVStore.
package core
