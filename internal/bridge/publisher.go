// Package bridge drives the co-simulation: the fixed-timestep loop
// that closes the control loop between the world, the telemetry link
// and the AEB decision engine, and the snapshot fanout feeding the
// HUD, run log and report sinks.
package bridge

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/crosswalk-data/aeb.report/internal/aeb"
	"github.com/crosswalk-data/aeb.report/internal/cosim"
	"github.com/crosswalk-data/aeb.report/internal/telemetry"
	"github.com/crosswalk-data/aeb.report/internal/world"
)

// Snapshot is the per-tick state published to sinks. Snapshots are
// immutable value copies: consumers on their own goroutines must never
// mutate them or block the step loop.
type Snapshot struct {
	Tick             int                    `json:"tick"`
	Time             float64                `json:"time"` // simulated seconds
	Distance         float64                `json:"distance"`
	TTC              float64                `json:"ttc"`
	EgoSpeed         float64                `json:"ego_speed"`
	LeadSpeed        float64                `json:"lead_speed"`
	RelativeVelocity float64                `json:"relative_velocity"`
	State            aeb.State              `json:"-"`
	StateName        string                 `json:"state"`
	Command          telemetry.CommandFrame `json:"command"`
	Control          world.Control          `json:"control"`
	LinkState        cosim.LinkState        `json:"-"`
	LinkStateName    string                 `json:"link_state"`
	Collision        bool                   `json:"collision"`
}

// Publisher fans snapshots out to subscribers. Publishing never
// blocks: a subscriber whose channel is full has that tick dropped
// rather than applying backpressure to the simulation. Correct with
// zero subscribers.
type Publisher struct {
	mu          sync.Mutex
	subscribers map[string]chan Snapshot
	latest      Snapshot
	hasLatest   bool
	closing     bool
}

// NewPublisher creates an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{subscribers: make(map[string]chan Snapshot)}
}

// randomID generates a random subscriber ID (8 byte random hex value).
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a buffered channel of tick snapshots. The ID
// identifies the channel when unsubscribing. A publisher that is
// already closing hands back a closed channel so callers don't block.
func (p *Publisher) Subscribe() (string, chan Snapshot) {
	id := randomID()
	ch := make(chan Snapshot, 16)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closing {
		close(ch)
		return id, ch
	}
	p.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (p *Publisher) Unsubscribe(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.subscribers[id]; ok {
		close(ch)
		delete(p.subscribers, id)
	}
}

// Publish delivers s to every subscriber that has room and records it
// as the latest snapshot.
func (p *Publisher) Publish(s Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closing {
		return
	}
	p.latest = s
	p.hasLatest = true
	for _, ch := range p.subscribers {
		select {
		case ch <- s:
		default:
			// slow sink: drop this tick rather than stall the loop
		}
	}
}

// Latest returns the most recently published snapshot, if any.
func (p *Publisher) Latest() (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.hasLatest
}

// Close closes all subscriber channels deterministically so readers
// unblock during shutdown.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closing {
		return
	}
	p.closing = true
	for id, ch := range p.subscribers {
		close(ch)
		delete(p.subscribers, id)
	}
}
