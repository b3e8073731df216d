// File: protocol/crc32.go
// CRC32 checksum helper. The wire format uses the standard IEEE polynomial
// (0xEDB88320), matching hash/crc32.IEEE.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"encoding/binary"
	"hash/crc32"
)

// checksum computes the standard IEEE CRC32 of data.
func checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

func appendCRC32(payload []byte) []byte {
	sum := checksum(payload)
	var trailer [crc32Size]byte
	binary.LittleEndian.PutUint32(trailer[:], sum)
	return append(payload, trailer[:]...)
}

// verifyCRC32 checks the trailing 4 bytes of payload against the checksum
// of everything before it. Returns the payload with the trailer stripped
// and whether verification succeeded.
func verifyCRC32(payload []byte) ([]byte, bool) {
	if len(payload) < crc32Size {
		return payload, false
	}
	body := payload[:len(payload)-crc32Size]
	want := binary.LittleEndian.Uint32(payload[len(payload)-crc32Size:])
	return body, checksum(body) == want
}
