// Package generation drives a single carousel request from acceptance to
// delivery.
//
// The Orchestrator moves a CarouselGeneration through its states with
// compare-and-set transitions, calling the copy provider, the image
// requester, the renderer, object storage and the delivery channel through
// the interfaces in providers.go. Any fatal step failure marks the generation
// FAILED and refunds its charge in a single ledger transaction.
//
// The ImageRequester bounds concurrent calls to the image provider with a
// process-wide permit pool and turns exhausted retries into a Fallback
// result rather than an error.
package generation
