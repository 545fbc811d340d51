// Package state holds the receiver's process-wide session state: cumulative
// counters, the push-to-talk flag, and the last-audio timestamp. All updates
// are atomic so a status reader can snapshot it at any time without pausing
// the receive or playback paths.
package state
