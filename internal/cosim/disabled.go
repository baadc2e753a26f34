package cosim

import (
	"time"

	"github.com/crosswalk-data/aeb.report/internal/telemetry"
)

// DisabledLink is the no-op CommandLink used when the controller never
// connects (accept failure, or a run started with --no-link). It lets
// the rest of the bridge run unchanged: every tick sees a Degraded
// link and the decision engine synthesises commands locally.
type DisabledLink struct{}

func NewDisabledLink() *DisabledLink { return &DisabledLink{} }

func (*DisabledLink) Send(telemetry.TelemetryFrame) error { return nil }

func (*DisabledLink) Receive(time.Duration) (telemetry.CommandFrame, error) {
	return telemetry.CommandFrame{}, ErrClosed
}

func (*DisabledLink) State() LinkState { return Degraded }

func (*DisabledLink) Close() error { return nil }
