// Package transcode converts uploaded audio into MP3 using the ffmpeg binary
// and verifies the result by decoding its MPEG frames.
package transcode
