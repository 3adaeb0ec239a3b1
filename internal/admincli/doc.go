// Package admincli implements the out-of-band operator commands of
// cmd/admin: role elevation, password set and the pending-approval list.
// It talks to the database directly and never goes through the HTTP API.
package admincli
