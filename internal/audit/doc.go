// Package audit defines the internal audit event model, sink contracts, and
// the asynchronous dispatcher that decouples flow latency from sink latency.
package audit
