// Package domain contains the core business entities of the carousel
// service: users and their credit ledger entries, carousel generation
// attempts with their status state machine, slides, and the style registry.
// It is independent of any storage or delivery mechanism.
package domain
