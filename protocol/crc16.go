package protocol

// CRC16 calculates the frame checksum: CRC-16/MCRF4XX (CCITT polynomial,
// reflected, initial value 0xFFFF, no final xor).
func CRC16(data []byte) uint16 {
	return crc16Update(0xFFFF, data)
}

// crc16Update continues a running checksum so the decoder can update it
// one byte at a time.
func crc16Update(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = crc16Byte(crc, b)
	}
	return crc
}

func crc16Byte(crc uint16, b byte) uint16 {
	b = b ^ uint8(crc&0xFF)
	b = b ^ (b << 4)
	b16 := uint16(b)
	return (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
}
