// Package events carries task lifecycle notifications between the
// submission path and whatever wants to react to them: the local task
// runner, and the Redis relay that wakes runners in other processes.
//
// Delivery is best effort. The task store is the source of truth and the
// runner's periodic sweep picks up anything a lost event would have
// announced.
package events
