// Package filter compiles CEL expressions into event predicates.
//
// Evaluation is sandboxed per call: each Evaluate builds a fresh activation
// from a copy of the event, bounds runtime cost, and reports failures as a
// tagged Result instead of panicking or propagating to the publisher.
package filter
