// Package bus maps register-level device operations onto addressed I2C
// transactions. Burst reads are chunked to the transport's maximum transfer
// size, with every chunk trimmed to an exact multiple of the per-sample
// record width so no record is ever split across two transfers.
package bus

import (
	"context"
	"fmt"

	"github.com/5l1v3r1/homeicu"
)

// Registers provides register read/write access to one device on a shared
// bus. Only the acquisition loop issues transactions, so there is no
// arbitration beyond the transport's own locking.
type Registers struct {
	transport   homeicu.I2CBus
	address     byte
	maxTransfer int
	buf         [1]byte
}

type Option func(*Registers)

// WithMaxTransfer overrides the transport chunk limit. Zero means the
// transport has no limit and bursts go out in one transfer.
func WithMaxTransfer(limit int) Option {
	return func(r *Registers) {
		r.maxTransfer = limit
	}
}

// NewRegisters binds a device address to a transport. If the transport
// reports a maximum transfer size it becomes the default chunk limit.
func NewRegisters(transport homeicu.I2CBus, address byte, opts ...Option) *Registers {
	r := &Registers{transport: transport, address: address}
	if mt, ok := transport.(homeicu.MaxTransferer); ok {
		r.maxTransfer = mt.MaxTransfer()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Address returns the bound device address.
func (r *Registers) Address() byte {
	return r.address
}

// MaxTransfer returns the effective chunk limit, zero when unlimited.
func (r *Registers) MaxTransfer() int {
	return r.maxTransfer
}

// Read returns the content of a single register.
func (r *Registers) Read(ctx context.Context, reg byte) (byte, error) {
	err := r.transport.WriteToAddr(ctx, r.address, []byte{reg})
	if err != nil {
		return 0, fmt.Errorf("could not set register pointer %#x: %w", reg, err)
	}
	err = r.transport.ReadFromAddr(ctx, r.address, r.buf[:])
	if err != nil {
		return 0, fmt.Errorf("could not read register %#x: %w", reg, err)
	}
	return r.buf[0], nil
}

// Write sets the content of a single register.
func (r *Registers) Write(ctx context.Context, reg, value byte) error {
	err := r.transport.WriteToAddr(ctx, r.address, []byte{reg, value})
	if err != nil {
		return fmt.Errorf("could not write register %#x: %w", reg, err)
	}
	return nil
}

// Update performs a read-modify-write: bits outside mask are preserved,
// bits inside mask are replaced by value.
func (r *Registers) Update(ctx context.Context, reg, mask, value byte) error {
	current, err := r.Read(ctx, reg)
	if err != nil {
		return err
	}
	return r.Write(ctx, reg, (current&mask)|value)
}

// ReadBurst fills buf from a device FIFO data register. The transfer is
// split into chunks no larger than the transport limit, each an exact
// multiple of recordSize, and the register pointer is rewritten before
// every chunk. len(buf) must itself be a multiple of recordSize.
func (r *Registers) ReadBurst(ctx context.Context, reg byte, buf []byte, recordSize int) error {
	if recordSize <= 0 {
		return fmt.Errorf("invalid record size %d", recordSize)
	}
	if len(buf)%recordSize != 0 {
		return fmt.Errorf("burst length %d is not a multiple of record size %d", len(buf), recordSize)
	}
	chunkLimit := r.maxTransfer
	if chunkLimit > 0 && chunkLimit < recordSize {
		return fmt.Errorf("transport limit %d cannot fit one %d-byte record", chunkLimit, recordSize)
	}
	for offset := 0; offset < len(buf); {
		chunk := len(buf) - offset
		if chunkLimit > 0 && chunk > chunkLimit {
			// trim to a whole number of records so none straddles transfers
			chunk = chunkLimit - chunkLimit%recordSize
		}
		err := r.transport.WriteToAddr(ctx, r.address, []byte{reg})
		if err != nil {
			return fmt.Errorf("could not set burst register pointer %#x: %w", reg, err)
		}
		err = r.transport.ReadFromAddr(ctx, r.address, buf[offset:offset+chunk])
		if err != nil {
			return fmt.Errorf("burst read of %d bytes at offset %d failed: %w", chunk, offset, err)
		}
		offset += chunk
	}
	return nil
}
