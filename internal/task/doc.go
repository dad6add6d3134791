// Package task manages background job queuing, processing, and lifecycle.
// Carousel generation requests are wrapped in envelopes, persisted as task
// records, pushed through a queue backend and executed by a pool of worker
// goroutines with bounded retries. The IdempotencyGuard makes redelivery of
// an envelope safe: a generation is never delivered or refunded twice.
package task
