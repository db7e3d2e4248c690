// Package apiclient talks to a running loreweave daemon over its HTTP API.
//
// The CLI uses it for every command that reads or changes review state so
// the daemon stays the only writer of the database.
package apiclient
