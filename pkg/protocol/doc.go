// Package protocol implements the binary wire protocol spoken between the
// browser runtime and the server over a WebSocket connection.
//
// Every message is carried in a frame with a fixed 4-byte header:
//
//	byte 0: frame type
//	byte 1: flags
//	bytes 2-3: payload length, big-endian
//
// Frame types:
//
//	Handshake  connection setup (ClientHello / ServerHello)
//	Event      client-to-server interaction (navigate, select, run query)
//	Patches    server-to-client presentation updates
//	Control    ping/pong, resync, close
//	Ack        client acknowledgment of applied patches
//	Error      server-reported errors
//
// Payloads use a compact binary encoding: varints for integers, ZigZag for
// signed values, and length-prefixed UTF-8 for strings. The Decoder
// enforces allocation and collection limits so a malicious peer cannot
// force large allocations with a forged length prefix.
//
// A connection starts with the client sending ClientHello, which carries
// the current location path so the server can resolve and present the
// right view before the first user interaction. After a successful
// ServerHello, events flow up and sequenced patch batches flow down; Acks
// let the server trim its patch history for resync.
package protocol
