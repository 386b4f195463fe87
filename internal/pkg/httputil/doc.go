// Package httputil holds the JSON and HTML response helpers shared by the
// API and tracking handlers, so every endpoint renders errors with the same
// envelope.
package httputil
