// Package api wires the HTTP surface: campaign management, dispatch,
// analytics reads and the public tracking endpoints.
package api
