// Package compose turns a campaign template and one recipient into the
// message that recipient receives: personalization tokens are substituted,
// outbound links are rewritten into click-tracking redirects and an
// open-tracking pixel is added.
//
// Compose is a pure function of its inputs. Composing the same campaign for
// the same recipient twice yields byte-identical output.
package compose
