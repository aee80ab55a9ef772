// Package daemon owns the server side of the signing protocol.
//
// Ownership boundary:
// - accept loop and per-connection goroutines
// - frame -> validate -> sign -> response pipeline
// - graceful drain on shutdown
//
// Each connection answers its frames strictly in arrival order, one at a
// time, writing exactly one response frame per request frame. Clients rely on
// this for correlation since frames carry no request id. Connections never
// share mutable state; the gateway is the only shared dependency.
//
// Only framing defects and transport errors close a connection. Validation and
// signing failures become ok=false responses.
package daemon
