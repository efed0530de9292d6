/*
Package spoolgo pushes local files into a distributed key/value store
concurrently.

The backend subpackage provides a convenient abstraction for talking
to a storage cluster. See the documentation of the backend package for
details on the supported drivers and their configuration checks. The
pipeline subpackage implements the low-level bounded worker pool if
the Spooler doesn't offer the level of control that your application
requires, and the upload subpackage holds the two processing stages
built on it.

The root spoolgo package provides the Spooler, the public entry point.
Copy schedules a direct upload of a local file under a remote path,
while ProcessChunk first compresses and digests the file so that it is
stored under its own content digest. Both calls return immediately;
outcomes are delivered asynchronously to listener callbacks and the
cumulative error count is available at any time. Call
EndOfTransaction followed by WaitForUpload to wait for a batch to
reach a terminal state, and WaitForTermination to shut the pipeline
down. The Spooler also exposes a Status struct that can be used during
an upload to query the progress of the batch.
*/
package spoolgo
