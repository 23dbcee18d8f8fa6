// Package webhook implements the inbound push-notification endpoint with
// HMAC-SHA1 signature verification.
//
// # Security Model
//
// - HMAC-SHA1 signatures verified using crypto/subtle (constant-time comparison)
// - Body size limits enforced to prevent DoS
// - No signature details leaked in error responses (generic 403)
// - Request logging excludes payload content
// - The shared secret is loaded once at startup (config or environment)
//
// # Request Flow
//
//  1. GET with hub.challenge answers the subscription handshake (200, echo)
//  2. POST body size checked (reject with 413 if too large)
//  3. X-Hub-Signature extracted, HMAC-SHA1 computed over the raw body
//  4. Constant-time comparison (reject with 403 "Signature mismatch")
//  5. Body parsed into events; malformed XML rejected with 400 "Invalid XML"
//  6. Valid events enqueued for dispatch; duplicates acknowledged silently
//  7. 204 No Content returned; dispatch outcomes never change the response
//
// The 204 is the commitment point: after it, download or email failures are
// visible only in logs, the delivery log, and metrics. The hub drives retries
// off the HTTP status alone.
package webhook
