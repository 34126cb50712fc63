// Package snapshot serializes a vector collection and its indexes into a
// single checksummed blob.
//
// # Format
//
//	magic "ANX1" | version u16 | compression u8 | vector encoding u8 |
//	codec name (u8 length + bytes) | raw size u64 | stored size u64 |
//	payload | CRC32C u32
//
// Stored size 0 means the payload is not compressed. The CRC covers every
// byte before it. The payload is a sequence of tagged sections
// (tag u8, length u32, body); readers skip tags they do not know.
//
// Keys, the clustering partition and the graph adjacency are encoded with
// the codec named in the header. Vectors are packed little-endian as
// float32, or as IEEE half precision when Float16 is selected (lossy).
package snapshot
