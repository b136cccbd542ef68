// Package link defines the messages exchanged between endpoints and the
// router: declarations, samples, queries and their replies. Each message is
// one frame whose payload is a TLV field list checked against a per-type
// requirement table.
package link
