/*
Package mock provides fake upload destinations for testing

The structs defined here all implement the
github.com/ibmjstart/spoolgo/backend.Store interface and are therefore
useful for testing any code that pushes data through a store. It
includes a store that does nothing, a store that keeps uploaded data
in memory and records the order of reads and writes, and a store that
always generates errors.
*/
package mock
