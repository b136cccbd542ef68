// Package router is the hub that link-protocol sessions connect to. It
// keeps a table of subscriber and queryable declarations per exact key,
// fans samples out to subscribers and queries out to queryables, and
// forwards replies back to the querier under the querier's message id.
package router
