// Package storage is the event store adapter.
//
// It reads events and flips their notified flag. Two drivers are supported:
//   - "notion": a Notion database queried over the public REST API
//   - "sqlite": a local SQLite file (schema in migrations.sql)
//
// Every driver decodes rows into event.Record at this boundary, so callers
// never inspect raw property shapes.
package storage
