// Package recognition orchestrates document recognition jobs against a
// slow, asynchronous external engine. It tracks each outstanding job in an
// in-memory registry, polls the engine on a shared timer, estimates
// progress heuristically, and hands completed results to a persistence
// sink. Callers observe registry changes through the events bus; the
// registry never retains finished tasks.
package recognition
