// Package flows contains the orchestration behind every Engine operation.
//
// Each Run* function takes a typed dependency struct and returns a result
// carrying either the produced tokens or a failure kind. The root package maps
// failure kinds to its public errors, records metrics, and emits audit events;
// flows do none of that.
//
// Flows hold no state between calls and never import the root package.
package flows
