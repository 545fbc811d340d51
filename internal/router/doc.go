// Package router dispatches parsed Opulent Voice frames by type. Audio goes to
// the playback pipeline, PTT control commands update the receiver state, and
// text, other control messages and unhandled frame types are surfaced to an
// observer.
package router
