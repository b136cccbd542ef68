// Package programs holds the bodies of the cdrbridge binaries. Each Run
// function connects, prints a short banner and per-message lines to the
// console writer, and returns when the shutdown token trips. Only
// connection and encode failures are returned as errors.
package programs
