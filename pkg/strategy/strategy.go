// Package strategy decides, per outgoing message, whether a ratchet should
// perform a KEM pulse or a symmetric-only step. The decision is advisory:
// a packet self-describes whether it carries a pulse, so replacing the
// strategy never affects interoperability.
package strategy

import "time"

// RatchetMode selects how aggressively a session pulses its KEM.
type RatchetMode int

const (
	// MaximumSecurity pulses on every outgoing message.
	MaximumSecurity RatchetMode = iota
	// BalancedFlow pulses periodically, trading some latency for
	// reduced KEM overhead.
	BalancedFlow
	// MinimalOverhead pulses rarely, favoring throughput.
	MinimalOverhead
)

func (m RatchetMode) String() string {
	switch m {
	case MaximumSecurity:
		return "MAXIMUM_SECURITY"
	case BalancedFlow:
		return "BALANCED_FLOW"
	case MinimalOverhead:
		return "MINIMAL_OVERHEAD"
	default:
		return "UNKNOWN"
	}
}

// largeMessageThreshold forces a pulse regardless of mode once a single
// plaintext is this large.
const largeMessageThreshold = 1 * 1024 * 1024

type thresholds struct {
	messages uint64
	bytes    uint64
	wallTime time.Duration
}

var modeThresholds = map[RatchetMode]thresholds{
	MaximumSecurity: {messages: 1, bytes: 128 * 1024, wallTime: 0},
	BalancedFlow:    {messages: 16, bytes: 4 * 1024 * 1024, wallTime: 60 * time.Second},
	MinimalOverhead: {messages: 128, bytes: 64 * 1024 * 1024, wallTime: 600 * time.Second},
}

// Strategy decides whether an outgoing message should trigger a KEM pulse.
type Strategy interface {
	ShouldPulse(messagesSincePulse, bytesSincePulse uint64, sinceLastPulse time.Duration, plaintextLen int) bool
}

// AdaptiveStrategy implements Strategy per the recommended decision table:
// pulse if the mode is MaximumSecurity, or any of the message/byte/time
// thresholds for the mode are met, or the plaintext itself is large.
type AdaptiveStrategy struct {
	mode RatchetMode
}

var _ Strategy = (*AdaptiveStrategy)(nil)

// NewAdaptiveStrategy returns a Strategy operating in the given mode.
func NewAdaptiveStrategy(mode RatchetMode) *AdaptiveStrategy {
	return &AdaptiveStrategy{mode: mode}
}

// Mode reports the strategy's configured mode.
func (s *AdaptiveStrategy) Mode() RatchetMode {
	return s.mode
}

func (s *AdaptiveStrategy) ShouldPulse(messagesSincePulse, bytesSincePulse uint64, sinceLastPulse time.Duration, plaintextLen int) bool {
	if s.mode == MaximumSecurity {
		return true
	}
	if plaintextLen >= largeMessageThreshold {
		return true
	}
	t, ok := modeThresholds[s.mode]
	if !ok {
		t = modeThresholds[BalancedFlow]
	}
	if messagesSincePulse >= t.messages {
		return true
	}
	if bytesSincePulse >= t.bytes {
		return true
	}
	if t.wallTime > 0 && sinceLastPulse >= t.wallTime {
		return true
	}
	return false
}
