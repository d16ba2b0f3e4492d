// Package protocol implements the liveview wire protocol.
//
// Sessions send the mounted tree and patch lists to the client; the client
// sends events. Patches cross the process boundary only as protocol messages.
//
// # Wire Format
//
// All messages are framed with a 6-byte header:
//
//	┌─────────────┬──────────────┬───────────────────────────────┐
//	│ Frame Type  │ Flags        │ Payload Length                │
//	│ (1 byte)    │ (1 byte)     │ (4 bytes, big-endian)         │
//	└─────────────┴──────────────┴───────────────────────────────┘
//
// # Frame Types
//
//   - FrameMount (0x01): first tree of a session
//   - FramePatches (0x02): patches for one event, with the resulting fingerprint
//   - FrameEvent (0x03): client event
//   - FrameError (0x04): rejection of one event
//   - FramePing (0x05), FramePong (0x06): heartbeat
//   - FrameClose (0x07): session close
//
// # Codecs
//
// The payload is produced by a Codec:
//
//   - Binary: varints and length-prefixed strings, no reflection
//   - CBOR: RFC 8949 core deterministic encoding
//
// Payloads larger than the framer's threshold are zstd compressed and the
// frame carries FlagCompressed.
//
// # Limits
//
// Decoders bound allocations (DefaultMaxAllocation, MaxCollectionCount) and
// nesting (MaxVNodeDepth, MaxPatchDepth), so a hostile peer cannot exhaust
// memory or stack.
package protocol
