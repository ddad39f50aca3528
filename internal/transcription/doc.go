// Package transcription implements the HTTP client for an AssemblyAI compatible
// speech-to-text API. It streams audio to the upload endpoint, submits transcript
// jobs for the hosted URL and keeps request statistics. Requests are never retried.
package transcription
