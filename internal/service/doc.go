// Package service contains the application use cases that sit between the
// delivery surfaces (HTTP API, CLI) and the domain: registering users,
// accepting carousel requests, crediting payments and reporting stats.
//
// Services receive their collaborators through constructor injection and
// depend on store and ledger interfaces, never on a concrete database.
// Expected conditions are reported as sentinel errors that the API layer
// maps to HTTP status codes; everything else is wrapped in a ServiceError
// that records the failed operation.
package service
