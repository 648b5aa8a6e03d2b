// Package repository stores serializable entities as versioned documents on
// Bun, with optimistic concurrency control and JSON field search.
package repository
