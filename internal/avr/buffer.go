package avr

import (
	"context"
	"sync"
	"time"
)

// bufferedCommand is a deferred device command awaiting reconnect.
type bufferedCommand struct {
	submitted time.Time
	name      string
	run       func(context.Context) error
}

// commandBuffer queues commands issued while the device is unreachable.
// Entries keep submission order and expire after ttl without executing.
type commandBuffer struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries []bufferedCommand
}

func newCommandBuffer(ttl time.Duration) *commandBuffer {
	return &commandBuffer{ttl: ttl, now: time.Now}
}

func (b *commandBuffer) add(name string, run func(context.Context) error) {
	b.mu.Lock()
	b.entries = append(b.entries, bufferedCommand{submitted: b.now(), name: name, run: run})
	b.mu.Unlock()
}

// takeAll removes and returns every queued entry in submission order.
func (b *commandBuffer) takeAll() []bufferedCommand {
	b.mu.Lock()
	entries := b.entries
	b.entries = nil
	b.mu.Unlock()
	return entries
}

func (b *commandBuffer) expired(cmd bufferedCommand) bool {
	return b.now().Sub(cmd.submitted) > b.ttl
}

func (b *commandBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
