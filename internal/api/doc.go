// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It acts as an adapter between the bot front-end,
// the payment gateway and operators on one side and the application services
// on the other, translating HTTP concerns to business operations.
package api
