// Package shutdown runs registered hooks once when the process stops.
//
// Hooks run newest first, so resources registered late, such as locks
// obtained after the connection was set up, are released before the
// connection they depend on is closed.
package shutdown
