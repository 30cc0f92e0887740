package pix

import "fmt"

const (
	crcTag         = "63"
	crcPlaceholder = crcTag + "04"
)

// CRC16 is CRC-16/CCITT-FALSE: init 0xFFFF, poly 0x1021, msb first, no final xor
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Checksum returns the value of the trailing 63 field for the given fields.
// The checksum covers the "6304" placeholder as well.
func Checksum(payload string) string {
	return fmt.Sprintf("%04X", CRC16([]byte(payload+crcPlaceholder)))
}
