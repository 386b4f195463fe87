// Package sending resolves the mail transport parameters an owner sends
// with.
//
// Owners may store their own SMTP or SES parameters. Owners without a
// stored row use the server's default transport from configuration.
package sending
