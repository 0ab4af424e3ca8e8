// Package domain holds the shared request-validation types: the immutable
// per-request Snapshot presented to validators, the Verdict they produce, and
// the observability event model. The package has no dependencies on the HTTP
// layer so validators stay pure and deterministic.
package domain
