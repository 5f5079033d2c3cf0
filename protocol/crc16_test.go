package protocol

import "testing"

func TestCRC16(t *testing.T) {
	testCases := []struct {
		data     []byte
		expected uint16
	}{
		{data: []byte("123456789"), expected: 0x6F91},
		{data: []byte{}, expected: 0xFFFF},
		{data: []byte{5, 0x7E}, expected: 0x14F9},
	}

	for i, tc := range testCases {
		result := CRC16(tc.data)
		if result != tc.expected {
			t.Errorf("Test case %d: expected CRC16(%v) = 0x%04X, got 0x%04X", i, tc.data, tc.expected, result)
		}
	}
}

func TestCRC16Incremental(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = crc16Byte(crc, b)
	}

	if crc != CRC16(data) {
		t.Errorf("Incremental CRC 0x%04X does not match one-shot 0x%04X", crc, CRC16(data))
	}
}

func TestCRC16Different(t *testing.T) {
	// Test that different inputs produce different outputs
	data1 := []byte{0x01, 0x02, 0x03}
	data2 := []byte{0x01, 0x02, 0x04}

	crc1 := CRC16(data1)
	crc2 := CRC16(data2)

	if crc1 == crc2 {
		t.Errorf("CRC16 collision: both inputs produced %04X", crc1)
	}
}
