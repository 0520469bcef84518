// Package api handles incoming HTTP requests, request validation and
// response formatting for the task control surface: submission,
// cancellation, history, live status streams, credit balance and the
// operator maintenance triggers. Handlers translate HTTP concerns to the
// task service, notifier and worker.
package api
