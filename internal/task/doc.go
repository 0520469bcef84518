// Package task runs generation tasks in the background.
//
// A Worker claims one pending task, calls the image provider, and writes the
// outcome with a conditional status update. The TaskRunner keeps a pool of
// workers fed from a wake queue and a periodic sweep of the store, and runs
// the Reaper on a schedule. Durable copies of generated images are made after
// completion by a ResultUploader behind an UploadDispatcher.
package task
