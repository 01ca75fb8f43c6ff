package wire

import (
	"hash/crc64"
	"unsafe"
)

// crcTable is the ECMA CRC-64 table shared by buffer CRCs, name hashes and
// the running stream checksum.
var crcTable = crc64.MakeTable(crc64.ECMA)

// CRC64 computes the CRC-64/ECMA of data.
func CRC64(data []byte) uint64 {
	return crc64.Checksum(data, crcTable)
}

// CRC64String computes the CRC-64/ECMA of s without copying.
func CRC64String(s string) uint64 {
	return UpdateCRC64(0, unsafe.Slice(unsafe.StringData(s), len(s)))
}

// UpdateCRC64 continues a running CRC-64/ECMA with data.
func UpdateCRC64(crc uint64, data []byte) uint64 {
	return crc64.Update(crc, crcTable, data)
}
