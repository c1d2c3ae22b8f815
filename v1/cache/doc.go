// Package cache layers typed values over an adapter.
//
// Redis encodes values with a Codec and stores them through any adapter
// KV surface. An optional ristretto tier keeps recently read values in
// process, and Remember collapses concurrent loads of the same key. Events
// plugs into the transport as a connection observer.
package cache
