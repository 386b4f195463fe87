// Package recipient resolves the eligible recipient set for a dispatch run.
package recipient
