package homeicu

import (
	"context"
	"fmt"
)

// ErrBusBusy is returned when the I2C engine has not completed the previous
// command yet. Callers may release the bus and retry.
var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// ErrBusTimeout is returned when a device does not acknowledge a transaction.
// During initialization it is counted and recovered from; it never halts the
// acquisition loop.
var ErrBusTimeout = fmt.Errorf("no acknowledgment from device")

// ErrIdentityMismatch is returned when a device identity register does not
// match the expected part. The device is left unconfigured; other sensors
// keep running.
var ErrIdentityMismatch = fmt.Errorf("device identity mismatch")

// ErrNoData is returned by bounded waits that time out before fresh data
// shows up. The caller gets the sentinel instead of blocking indefinitely.
var ErrNoData = fmt.Errorf("no data available")

type BusReader interface {
	Read(ctx context.Context, buffer []byte) error
}

type BusWriter interface {
	Write(ctx context.Context, buffer []byte) error
}

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
}

type I2CDevice interface {
	BusReader
	BusWriter
}

// MaxTransferer is implemented by transports with a bounded transfer size
// (e.g. USB HID adapters framing I2C into fixed reports). Burst reads are
// chunked to this limit.
type MaxTransferer interface {
	MaxTransfer() int
}
