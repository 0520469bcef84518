// Package postgres implements the task and credit stores on PostgreSQL.
//
// Every status change is a conditional UPDATE that names the status it
// expects to replace, so concurrent writers (workers, the reaper, a user
// cancelling) resolve to exactly one winner. The schema ships with the
// package as embedded goose migrations.
package postgres
