package sim

import (
	"context"
	"time"

	"github.com/mantlenetworkio/plasma/plasma-rootchain/rootchain"
	"github.com/mantlenetworkio/plasma/plasma-service/clock"
)

// Clock exposes a deterministic clock as chain time.
type Clock struct {
	c *clock.DeterministicClock
}

var _ rootchain.Clock = (*Clock)(nil)

func NewClock(c *clock.DeterministicClock) *Clock {
	return &Clock{c: c}
}

func (c *Clock) Now(context.Context) (uint64, error) {
	return uint64(c.c.Now().Unix()), nil
}

func (c *Clock) Advance(_ context.Context, seconds uint64) error {
	c.c.AdvanceTime(time.Duration(seconds) * time.Second)
	return nil
}
