// Package api contains the HTTP handlers exposing the recognition
// subsystem to UI clients.
package api
