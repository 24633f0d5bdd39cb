// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free
// of ORM concerns.
//
// Structure:
//   - record.go: shared identity and version columns
//   - batch.go: inventory batches and the append-only ledger
//   - fulfillment.go: fulfillment requests and their line items
//   - alert.go: low-stock alert history
package models
