// Package pipeline implements the upload, transcode and submit sequence behind
// POST /upload. A run is strictly sequential: convert the stored original to MP3,
// delete the original, stream the MP3 to the transcription provider and request
// a transcript. Failures end the run immediately and are never retried.
package pipeline
