// Package buffer defines byte payloads carried by serialized data.
//
// A Buffer either holds bytes in memory or refers to bytes persisted
// elsewhere through a Loader. On the wire a buffer is described by Meta:
// the uncompressed size, its CRC-64, and a packed word folding the
// compressed size, the compression codec and the external flag:
//
//	packed = ((compressedSize << 4) | compression) << 1 | external
//
// Compression uses klauspost/compress codecs (zstd, s2, snappy).
//
// A Factory turns the metadata of an external buffer into a Loader without
// blocking; the bytes are fetched when Loader.Load runs, or on a separate
// goroutine via LoadAsync.
package buffer
