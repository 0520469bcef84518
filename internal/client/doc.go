// Package client is a Go SDK for the task API. It mirrors what the web
// frontend does: submit and cancel tasks, list history, read the credit
// balance through a short-lived cache, and follow a task's status over
// server-sent events with a polling fallback.
package client
