// Package cryptoutil holds the hashing primitives behind credential
// verification: bcrypt password hashing and constant-time digest comparison.
package cryptoutil
