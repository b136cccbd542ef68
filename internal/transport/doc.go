// Package transport is the publish/subscribe/query contract the codec
// layers run on.
//
// A Session puts samples under a key, subscribes to keys, declares
// queryables and issues queries. Keys match exactly. A query's reply
// channel is closed once every responder has finished, the timeout has
// elapsed, or the caller's context ends. A responder is finished when its
// handler returns.
//
// Implementations register a scheme with Register from an init function;
// Open picks one from the endpoint prefix (tcp/, mem/).
package transport
