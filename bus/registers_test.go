package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// recordingBus captures every transaction issued by the register layer.
type recordingBus struct {
	writes      [][]byte
	readSizes   []int
	maxTransfer int
	fill        byte
	writeErr    error
	readErr     error
}

func (b *recordingBus) WriteToAddr(_ context.Context, _ byte, buffer []byte) error {
	if b.writeErr != nil {
		return b.writeErr
	}
	cp := make([]byte, len(buffer))
	copy(cp, buffer)
	b.writes = append(b.writes, cp)
	return nil
}

func (b *recordingBus) ReadFromAddr(_ context.Context, _ byte, buffer []byte) error {
	if b.readErr != nil {
		return b.readErr
	}
	b.readSizes = append(b.readSizes, len(buffer))
	for i := range buffer {
		buffer[i] = b.fill
	}
	return nil
}

func (b *recordingBus) Release(context.Context) error { return nil }

func (b *recordingBus) MaxTransfer() int { return b.maxTransfer }

func TestRegisters_ReadWritesPointerFirst(t *testing.T) {
	bus := &recordingBus{fill: 0xAB}
	regs := NewRegisters(bus, 0x57)

	v, err := regs.Read(context.Background(), 0x06)
	assert.NoError(t, err)
	assert.Equal(t, byte(0xAB), v)
	assert.Equal(t, [][]byte{{0x06}}, bus.writes)
	assert.Equal(t, []int{1}, bus.readSizes)
}

func TestRegisters_Write(t *testing.T) {
	bus := &recordingBus{}
	regs := NewRegisters(bus, 0x57)

	err := regs.Write(context.Background(), 0x09, 0x40)
	assert.NoError(t, err)
	assert.Equal(t, [][]byte{{0x09, 0x40}}, bus.writes)
}

func TestRegisters_UpdatePreservesMaskedBits(t *testing.T) {
	bus := &recordingBus{fill: 0b10110101}
	regs := NewRegisters(bus, 0x57)

	// keep the high nibble, replace the low nibble with 0x03
	err := regs.Update(context.Background(), 0x09, 0xF0, 0x03)
	assert.NoError(t, err)
	// last write carries the merged value
	last := bus.writes[len(bus.writes)-1]
	assert.Equal(t, []byte{0x09, 0b10110011}, last)
}

func TestRegisters_ReadBurstChunksAlignToRecords(t *testing.T) {
	tests := []struct {
		name        string
		maxTransfer int
		length      int
		recordSize  int
		expected    []int
	}{
		{
			name:        "unlimited transport, single transfer",
			maxTransfer: 0,
			length:      48,
			recordSize:  6,
			expected:    []int{48},
		},
		{
			name:        "32 byte limit with 6 byte records trims to 30",
			maxTransfer: 32,
			length:      48,
			recordSize:  6,
			expected:    []int{30, 18},
		},
		{
			name:        "32 byte limit with 9 byte records trims to 27",
			maxTransfer: 32,
			length:      72,
			recordSize:  9,
			expected:    []int{27, 27, 18},
		},
		{
			name:        "60 byte adapter frame",
			maxTransfer: 60,
			length:      96,
			recordSize:  6,
			expected:    []int{60, 36},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bus := &recordingBus{maxTransfer: test.maxTransfer}
			regs := NewRegisters(bus, 0x57)

			buf := make([]byte, test.length)
			err := regs.ReadBurst(context.Background(), 0x07, buf, test.recordSize)
			assert.NoError(t, err)
			assert.Equal(t, test.expected, bus.readSizes)
			for _, size := range bus.readSizes {
				assert.Zero(t, size%test.recordSize, "chunk %d not aligned to record size", size)
			}
			// register pointer rewritten before every chunk
			assert.Len(t, bus.writes, len(test.expected))
			for _, w := range bus.writes {
				assert.Equal(t, []byte{0x07}, w)
			}
		})
	}
}

func TestRegisters_ReadBurstRejectsBadGeometry(t *testing.T) {
	bus := &recordingBus{maxTransfer: 4}
	regs := NewRegisters(bus, 0x57)

	err := regs.ReadBurst(context.Background(), 0x07, make([]byte, 12), 0)
	assert.Error(t, err)

	err = regs.ReadBurst(context.Background(), 0x07, make([]byte, 13), 6)
	assert.Error(t, err)

	// one record does not fit the transport frame
	err = regs.ReadBurst(context.Background(), 0x07, make([]byte, 12), 6)
	assert.Error(t, err)
}

func TestRegisters_TransportErrorsAreWrapped(t *testing.T) {
	cause := errors.New("nack")
	bus := &recordingBus{writeErr: cause}
	regs := NewRegisters(bus, 0x57)

	_, err := regs.Read(context.Background(), 0x00)
	assert.ErrorIs(t, err, cause)

	err = regs.ReadBurst(context.Background(), 0x07, make([]byte, 6), 6)
	assert.ErrorIs(t, err, cause)
}

func TestRegisters_MaxTransferFromTransport(t *testing.T) {
	bus := &recordingBus{maxTransfer: 60}
	regs := NewRegisters(bus, 0x57)
	assert.Equal(t, 60, regs.MaxTransfer())

	// explicit option wins over the transport's own limit
	regs = NewRegisters(bus, 0x57, WithMaxTransfer(32))
	assert.Equal(t, 32, regs.MaxTransfer())
}
