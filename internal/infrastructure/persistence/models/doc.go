// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Column types are chosen so the same models migrate on PostgreSQL and SQLite:
// UUIDs use the uuid type name (text affinity on SQLite), money and readings
// use numeric, and structured fields are stored as JSON text.
//
// Structure:
// - base.go: BaseModel shared by every table
// - billing.go: service configurations, tariffs and the calculation audit trail
// - metering.go: buildings, properties, meters and meter readings
package models
