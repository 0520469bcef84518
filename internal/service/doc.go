// Package service contains the application use cases behind the HTTP API.
//
// TaskService accepts generation requests, gates them on the owner's credit
// balance, records them as pending tasks and announces them to the task
// runner. It also serves cancellation and the owner-scoped reads. Services
// depend on the store and credits interfaces only, never on a concrete
// database.
package service
