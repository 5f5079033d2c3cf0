//go:build rp2040 || rp2350

// Package rp2 holds the board services shared by the RP2040 and RP2350
// targets: settings in flash, watchdog reboot and USB debug output.
package rp2

import (
	"machine"

	"iox16/core"
)

// FlashStorage keeps the settings image in the last erase block of the
// flash data area.
type FlashStorage struct {
	offset int64
	size   int64
}

var _ core.Storage = (*FlashStorage)(nil)

// NewFlashStorage reserves the last erase block of machine.Flash.
func NewFlashStorage() *FlashStorage {
	block := machine.Flash.EraseBlockSize()
	return &FlashStorage{
		offset: machine.Flash.Size() - block,
		size:   block,
	}
}

func (s *FlashStorage) Load() ([]byte, error) {
	image := make([]byte, core.SettingsImageSize)
	if _, err := machine.Flash.ReadAt(image, s.offset); err != nil {
		return nil, err
	}
	return image, nil
}

// Store erases the block and programs the image, padded with 0xFF to the
// write block size.
func (s *FlashStorage) Store(image []byte) error {
	if int64(len(image)) > s.size {
		return core.ErrSettingsCorrupt
	}
	wb := machine.Flash.WriteBlockSize()
	n := (int64(len(image)) + wb - 1) / wb * wb
	buf := make([]byte, n)
	copy(buf, image)
	for i := len(image); i < len(buf); i++ {
		buf[i] = 0xFF
	}

	if err := machine.Flash.EraseBlocks(s.offset/s.size, 1); err != nil {
		return err
	}
	_, err := machine.Flash.WriteAt(buf, s.offset)
	return err
}
