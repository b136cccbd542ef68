// Package session holds the connection policy shared by both ends of a
// link: timeouts, reconnect backoff, and TLS/mTLS requirements.
//
// Endpoints validate with ValidateClientTransport before dialing; the
// router validates with ValidateServerTransport before listening.
package session
