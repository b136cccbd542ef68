// Package cdr implements a schema-driven little-endian CDR codec.
//
// A Schema is an ordered list of typed fields. Encode walks a Record in
// schema order, padding each primitive to a multiple of its own size
// relative to the start of the body; Decode reverses the walk and reports
// failures as *DecodeError carrying the field path and cursor offset.
//
// Strings carry a uint32 length that counts the trailing NUL. Sequences
// carry a uint32 element count. Fixed arrays and nested structs add no
// prefix and no trailing padding.
package cdr
