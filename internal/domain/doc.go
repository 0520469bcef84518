// Package domain contains the core business entities, value objects, and
// domain logic of the application: generation tasks, their status machine,
// the accepted generation parameters and their credit costs, and the prompt
// sent to the image provider. It is independent of any specific
// infrastructure or delivery mechanism.
package domain
