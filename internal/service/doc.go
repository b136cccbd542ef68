// Package service runs request/reply services over a transport session.
//
// A Client encodes a request with the service's request schema, issues a
// query on the service key and decodes every reply that arrives before the
// stream ends or the call times out. A Responder declares a queryable and
// answers each query with the handler's encoded response. Correlation is
// left to the transport: payloads carry only the CDR body.
package service
