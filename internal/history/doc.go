// Package history stores finished generation runs in a local SQLite database.
package history
