// Package storage is the optional push journal.
//
// Every push attempt (and every run start/end) can be appended to a JSON
// Lines file or a SQLite database so load runs can be audited afterwards.
package storage
