// Package esp opens mail-sending sessions against an SMTP relay or Amazon
// SES. A Session is opened once per dispatch run and used sequentially; it
// is never shared between runs.
package esp
