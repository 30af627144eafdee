// Package wire implements the length-prefixed frame format used to carry
// encoded records over a byte stream.
//
// A frame is an 8-byte big-endian unsigned length followed by that many
// payload bytes. The transport may fragment or coalesce frames arbitrarily;
// Decoder reassembles exact frames from whatever chunk boundaries the stream
// delivers. Encode is stateless, Decoder carries the undecoded tail between
// calls.
package wire
