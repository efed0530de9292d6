/*
Package backend defines the Store interface for distributed key/value
upload destinations.

The main fixture of the backend package is the Store interface. Store
provides the write-path operations that the upload workers need:
fetching the causality token of an existing key and pushing object
bytes under a key with a chosen consistency level. The default
implementation, RiakStore, speaks the Riak HTTP API and verifies at
construction time that the cluster keeps siblings on write conflicts
instead of silently merging them. SwiftStore adapts an OpenStack Swift
connection for deployments that only need plain writes. Mock
implementations suitable for testing live in the mock subpackage.
*/
package backend
