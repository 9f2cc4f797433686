// Package session stores the answers of one traversal of the form flow.
// Each session is a Redis hash keyed by its id; every write refreshes the
// hash's TTL so abandoned sessions expire on their own.
package session
