/*
Package upload implements the two stages of the content spooling
pipeline.

CompressionStage compresses a local file to a temporary location and
computes a digest of the compressed bytes. UploadStage derives a
deterministic storage key for a job, picks a backend endpoint in round
robin fashion and pushes the file's bytes into the store, using
read-before-write causality tokens and all-replica acknowledgement for
writes that require strong consistency.

Jobs are a tagged union with exactly one variant active per instance:
a plain upload carries a remote path, a compressed upload carries the
digest produced by the compression stage, and the empty variant marks
a failed job that must never reach the network path. Both stages
report outcomes as Result values through listener callbacks; per-job
failures never interrupt sibling jobs.
*/
package upload
