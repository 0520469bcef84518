// Package mocks provides reusable fakes for the external services the task
// pipeline talks to: the image provider and the blob store.
//
//	provider := mocks.NewMockProviderWithImages()
//	provider.Err = generation.ErrContentBlocked
//
// Each mock records its calls so tests can assert on what the code under
// test sent.
package mocks
