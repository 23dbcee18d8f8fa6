// Package dispatch drains the delivery queue and reacts to each accepted
// notification: forward metadata (best-effort), request a download from the
// download manager, then email the configured recipient.
//
// Key properties:
//   - Serial FIFO dispatch (one delivery at a time)
//   - Download strictly precedes email; the email body includes the
//     artifact's output path
//   - No compensation: an email failure does not undo the download
//   - No retry loop; a failed dispatch is terminal for that delivery
//     (the upstream hub redelivers on non-2xx HTTP responses, which this
//     loop never influences - acceptance was already committed with 204)
//   - Terminal outcomes recorded in delivery_log and surfaced via metrics
package dispatch
