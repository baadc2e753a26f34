package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/crosswalk-data/aeb.report/internal/aeb"
	"github.com/crosswalk-data/aeb.report/internal/config"
	"github.com/crosswalk-data/aeb.report/internal/cosim"
	"github.com/crosswalk-data/aeb.report/internal/kinematics"
	"github.com/crosswalk-data/aeb.report/internal/monitoring"
	"github.com/crosswalk-data/aeb.report/internal/telemetry"
	"github.com/crosswalk-data/aeb.report/internal/timeutil"
	"github.com/crosswalk-data/aeb.report/internal/world"
)

// Driver owns the fixed-timestep loop. One iteration is one world
// physics step of the configured timestep; wall-clock pacing keeps one
// tick per tick period. The driver runs on a single goroutine and is
// the sole owner of link health and the collision latch, so the
// decision path needs no locking.
type Driver struct {
	world  world.World
	link   cosim.CommandLink
	engine *aeb.Engine
	pub    *Publisher
	clock  timeutil.Clock

	timestep    float64
	warmup      float64
	tickPeriod  time.Duration
	recvTimeout time.Duration

	simTime float64
	tick    int
}

// NewDriver assembles the loop. The link may be a DisabledLink, in
// which case every tick runs in degraded (local fallback) mode from
// tick 1. A nil clock gets the real one.
func NewDriver(w world.World, link cosim.CommandLink, engine *aeb.Engine, pub *Publisher, cfg *config.Config, clock timeutil.Clock) *Driver {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Driver{
		world:       w,
		link:        link,
		engine:      engine,
		pub:         pub,
		clock:       clock,
		timestep:    cfg.GetTimestep(),
		warmup:      cfg.GetWarmupSeconds(),
		tickPeriod:  cfg.GetTickPeriod(),
		recvTimeout: cfg.GetReceiveTimeout(),
	}
}

// SimTime reports the simulated seconds elapsed so far.
func (d *Driver) SimTime() float64 { return d.simTime }

// Run executes the steady-state phase until the context is cancelled
// (honoured at the next tick boundary) or the world becomes
// unavailable. All resources are released on every exit path.
func (d *Driver) Run(ctx context.Context) error {
	defer d.teardown()

	monitoring.Logf("bridge: loop started, timestep=%.3fs link=%s", d.timestep, d.link.State())

	ticker := d.clock.NewTicker(d.tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("bridge: stop requested after %d ticks (%.2fs simulated)", d.tick, d.simTime)
			return nil
		case <-ticker.C():
			if err := d.Tick(); err != nil {
				return err
			}
		}
	}
}

// Tick runs one full iteration of the control loop: lead open-loop
// control, world step, kinematics, telemetry exchange, decision,
// actuation, publication, clock advance. World errors are fatal;
// everything on the network path is contained inside the link.
func (d *Driver) Tick() error {
	if err := d.world.ApplyLeadControl(aeb.LeadControl(d.simTime, d.warmup)); err != nil {
		return fmt.Errorf("lead control: %w", err)
	}
	if err := d.world.Step(); err != nil {
		return fmt.Errorf("world step: %w", err)
	}

	ego, err := d.world.EgoState()
	if err != nil {
		return fmt.Errorf("ego state: %w", err)
	}
	lead, err := d.world.LeadState()
	if err != nil {
		return fmt.Errorf("lead state: %w", err)
	}

	kin := kinematics.Compute(ego.Position, ego.Velocity, lead.Position, lead.Velocity)
	cmd := d.exchange(kin)

	out := d.engine.Evaluate(kin, cmd, d.link.State() != cosim.Connected)
	ctrl := aeb.EgoControl(out.State, out.Command, d.simTime, d.warmup)
	if err := d.world.ApplyEgoControl(ctrl); err != nil {
		return fmt.Errorf("ego control: %w", err)
	}

	d.tick++
	d.pub.Publish(Snapshot{
		Tick:             d.tick,
		Time:             d.simTime,
		Distance:         kin.Distance,
		TTC:              kin.TTC,
		EgoSpeed:         kin.EgoSpeed,
		LeadSpeed:        kin.LeadSpeed,
		RelativeVelocity: kin.RelativeVelocity,
		State:            out.State,
		StateName:        out.State.String(),
		Command:          out.Command,
		Control:          ctrl,
		LinkState:        d.link.State(),
		LinkStateName:    d.link.State().String(),
		Collision:        d.engine.CollisionLatched(),
	})

	d.simTime += d.timestep
	return nil
}

// exchange sends this tick's telemetry and attempts one bounded-wait
// receive. A timeout yields the zero CommandFrame ("no fresh command
// this tick"); any I/O failure has already flipped the link to
// Degraded by the time we return, and the engine falls back locally.
func (d *Driver) exchange(kin kinematics.Result) telemetry.CommandFrame {
	if d.link.State() != cosim.Connected {
		return telemetry.CommandFrame{}
	}

	// Best effort: a failed send degrades the link inside Send.
	_ = d.link.Send(telemetry.TelemetryFrame{
		Distance:     kin.Distance,
		LeadVelocity: kin.LeadSpeed,
		EgoVelocity:  kin.EgoSpeed,
	})
	if d.link.State() != cosim.Connected {
		return telemetry.CommandFrame{}
	}

	cmd, err := d.link.Receive(d.recvTimeout)
	if err != nil {
		// A timeout means no fresh command; anything else has already
		// degraded the link (and been logged once there). Either way
		// this tick proceeds on the zero frame.
		return telemetry.CommandFrame{}
	}
	return cmd
}

// teardown releases every resource unconditionally, whatever phase the
// loop was interrupted in.
func (d *Driver) teardown() {
	if err := d.link.Close(); err != nil {
		monitoring.Logf("bridge: link close: %v", err)
	}
	if err := d.world.Close(); err != nil {
		monitoring.Logf("bridge: world close: %v", err)
	}
	d.pub.Close()
}
