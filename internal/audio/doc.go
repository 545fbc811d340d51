// Package audio turns decoded Opus frames into a steady PCM stream for
// playback. It implements the bounded playback buffer with drop-oldest
// overflow, the decode/pull pipeline with silence on underrun, the sink
// contract the playback device satisfies, and headless sinks that pull on a
// timer and optionally write WAV files.
package audio
