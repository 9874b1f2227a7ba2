// Package audio handles microphone capture and WAV encoding.
// It implements the recording state machine that drains device frames into an
// ordered sample buffer and finalizes them into a mono 16-bit PCM WAV asset
// with a playable preview handle, metering the input level along the way.
package audio
