// Package credstore holds the set of accounts the login endpoint verifies
// against.
//
// The set is read from a YAML document:
//
//	users:
//	  - username: alice
//	    password_hash: $2a$12$...
//
// The document is fetched from a Source (local file, SSM parameter or S3
// object), validated by Parse and published through Store behind an atomic
// pointer, so verification never blocks on a reload. A Reloader polls the
// Source and swaps in a new set only when the document digest changes.
package credstore
