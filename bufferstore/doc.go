// Package bufferstore persists async buffer payloads outside the streams
// that reference them.
//
// Every store implements buffer.Sink for writers and buffer.Factory for
// readers. Payloads are keyed by uncompressed size and CRC, so identical
// buffers are stored once. CreateLoader never touches the backend; the
// returned loader fetches, decompresses and verifies on Load.
package bufferstore
