// Package dispatch runs campaign sends.
//
// Dispatch has two phases. The synchronous phase runs under a
// per-campaign lock and validates the request. It then queues one tracking
// record per recipient and moves the campaign from draft to sending. The
// background phase opens a single transport session and sends to each
// recipient in order with a fixed delay between sends. It records each
// outcome and finally marks the campaign sent.
//
// A session that cannot be opened, or a fault in the loop itself, rolls
// the campaign back to draft so it can be dispatched again. So does
// Shutdown, which stops each run before its next recipient.
package dispatch
