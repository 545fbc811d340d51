// Package protocol implements Opulent Voice frame parsing and encoding.
// It handles the fixed 14-byte big-endian header, frame type classification,
// and payload extraction from a single UDP datagram.
package protocol
