// Package database provides connection management, document table
// migrations, SQL seeding, configuration types, logging, health checks and
// the transaction scope manager that carries one bun.Tx through a
// context.Context chain.
package database
