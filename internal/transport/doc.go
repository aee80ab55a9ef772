// Package transport owns endpoint parsing and the reliable byte streams the
// signing protocol runs over.
//
// Ownership boundary:
// - endpoint strings (unix:, tcp:, tls:)
// - listener setup and stale unix socket cleanup
// - dialing with connect backoff
// - tls/mtls configuration and security mode checks
//
// Nothing here inspects frame contents.
package transport
