// Package tracking implements the tracking ledger: one record per
// (dispatch token, recipient) holding delivery state and engagement
// counters.
//
// Engagement writes (open, click, unsubscribe) are safe under duplicate and
// concurrent delivery. The repository increments a record counter and, in
// the same transaction, bumps the campaign aggregate only when that counter
// has just become 1. Campaign open/click/unsubscribe totals therefore always
// equal the number of records with the matching engagement.
package tracking
