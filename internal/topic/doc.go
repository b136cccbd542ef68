// Package topic binds CDR schemas to publish/subscribe keys.
package topic
