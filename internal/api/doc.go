// Package api handles incoming HTTP requests for tasks: routing, request
// validation and response formatting. Mutations are queued on the broker
// and applied synchronously only when the broker refuses them.
package api
