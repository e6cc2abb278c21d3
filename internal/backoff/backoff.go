// Package backoff holds the two delay policies used by the relay pipeline.
// Reconnection uses the exponential policy, single-call webhook delivery uses
// the linear one. They cover different failure classes and are intentionally
// not unified.
package backoff

import "time"

const (
	DefaultReconnectBase = 5 * time.Second
	DefaultReconnectMax  = 60 * time.Second
	DefaultDeliveryStep  = 2 * time.Second
)

// Exponential computes min(Base * 2^attempt, Max). Attempt 0 yields Base.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

func NewExponential(base, max time.Duration) Exponential {
	if base <= 0 {
		base = DefaultReconnectBase
	}
	if max <= 0 {
		max = DefaultReconnectMax
	}
	if max < base {
		max = base
	}
	return Exponential{Base: base, Max: max}
}

func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := e.Base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= e.Max {
			return e.Max
		}
	}

	if delay > e.Max {
		return e.Max
	}
	return delay
}

// Linear computes Step * attempt, where attempt counts from 1. The first
// retry waits one step, the second two, and so on.
type Linear struct {
	Step time.Duration
}

func NewLinear(step time.Duration) Linear {
	if step <= 0 {
		step = DefaultDeliveryStep
	}
	return Linear{Step: step}
}

func (l Linear) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * l.Step
}
