// Package storage defines the persistence interfaces the auth service depends
// on. The ceremony engine and session service only see these interfaces; the
// sqlite subpackage provides the production implementation.
package storage
