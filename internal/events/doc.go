// Package events decouples request intake from background execution.
//
// Services emit a TaskRequestEvent describing work to be done; handlers
// registered on an emitter turn it into something executable, such as a
// queued task. The event ID is chosen by the emitter's caller so it can be
// handed back to clients before any handler runs.
package events
