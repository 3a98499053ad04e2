// Package platform defines the Object Store Client used to read from a
// source instance and write to a destination instance.
//
// Implementations live in subpackages: memory for tests and scenario runs,
// httpapi for the REST API. Both report failures as *Error so callers can
// tell transient failures, which may be retried, from permanent ones.
package platform
