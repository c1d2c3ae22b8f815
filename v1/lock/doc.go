// Package lock provides a distributed mutual-exclusion lock built on Redis
// keys. A Semaphore obtains Locks: acquisition is a SET NX PX on
// "sem:[namespace:]id" guarded by a random token, and release and refresh
// only succeed while the key still holds that token. After a release the
// acquisition time is kept under the ":prev" key so the next holder can tell
// how long ago the resource was last used.
package lock
