// Package connection implements a CapTP-style remote capability
// projection protocol: two runtimes joined by a duplex byte stream
// exchange framed, length-prefixed CapOperation values, each side
// maintaining an imports table (remote capability ids it can address)
// and an exports table (local capabilities it has announced).
//
// Frames are u32 little-endian length prefixes followed by a
// github.com/vmihailenco/msgpack/v5 encoding of the operation: a
// length-prefixed framing idiom carrying a CapOperation tagged union in
// place of a generated protobuf message.
package connection
