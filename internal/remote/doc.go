// Package remote adapts hierarchical file stores to the small interface the
// sync engine needs.
//
// A Store holds folders and files addressed by opaque IDs. Lookups are by
// name inside a parent folder and return the first match; creation never
// checks for an existing entry, so callers find before they create.
//
// Three implementations are provided:
//
//   - DriveStore talks to a Drive-v3-shaped REST API with a bearer token.
//   - DirStore maps the hierarchy onto a local directory, for example one
//     kept in sync by a desktop client.
//   - MemStore keeps everything in memory and counts calls. Tests and the
//     load generator use it.
//
// Errors are classified with errors.Is against ErrNotFound, ErrAuthRejected
// and ErrNotAuthenticated, or with errors.As against *IOError.
package remote
