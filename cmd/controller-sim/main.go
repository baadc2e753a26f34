// Command controller-sim stands in for the external AEB controller. It
// dials the bridge, consumes telemetry frames and answers each one with
// a command frame computed from the same braking policy the bridge
// falls back to, so closed-loop runs can be exercised without the real
// controller stack.
package main

import (
	"errors"
	"flag"
	"io"
	"log"
	"net"
	"time"

	"github.com/crosswalk-data/aeb.report/internal/aeb"
	"github.com/crosswalk-data/aeb.report/internal/kinematics"
	"github.com/crosswalk-data/aeb.report/internal/telemetry"
)

var (
	connect     = flag.String("connect", "localhost:9001", "Bridge telemetry address")
	dialTimeout = flag.Duration("dial-timeout", 10*time.Second, "How long to wait for the bridge to listen")
	logEvery    = flag.Int("log-every", 20, "Log every Nth frame (0 disables)")
)

func main() {
	flag.Parse()

	conn, err := dialWithRetry(*connect, *dialTimeout)
	if err != nil {
		log.Fatalf("failed to connect to bridge: %v", err)
	}
	defer conn.Close()
	log.Printf("connected to bridge at %s", *connect)

	engine := aeb.NewEngine(aeb.DefaultThresholds())
	buf := make([]byte, telemetry.TelemetryFrameSize)

	for n := 1; ; n++ {
		if _, err := io.ReadFull(conn, buf); err != nil {
			if errors.Is(err, io.EOF) {
				log.Printf("bridge closed the link after %d frames", n-1)
				return
			}
			log.Fatalf("telemetry read failed: %v", err)
		}
		frame, err := telemetry.DecodeTelemetry(buf)
		if err != nil {
			log.Fatalf("telemetry decode failed: %v", err)
		}

		// Evaluate the braking policy on the received kinematics. The
		// engine synthesises the command exactly as the bridge's own
		// fallback would, which is the point: both sides must agree.
		kin := kinematics.Result{
			Distance:         frame.Distance,
			EgoSpeed:         frame.EgoVelocity,
			LeadSpeed:        frame.LeadVelocity,
			RelativeVelocity: frame.EgoVelocity - frame.LeadVelocity,
			TTC:              kinematics.TTC(frame.Distance, frame.EgoVelocity-frame.LeadVelocity),
		}
		out := engine.Evaluate(kin, telemetry.CommandFrame{}, true)

		if _, err := conn.Write(telemetry.EncodeCommand(out.Command)); err != nil {
			log.Fatalf("command write failed: %v", err)
		}

		if *logEvery > 0 && n%*logEvery == 0 {
			log.Printf("frame %d: d=%.2fm ttc=%.2fs state=%s decel=%.2f",
				n, kin.Distance, kin.TTC, out.State, out.Command.Deceleration)
		}
	}
}

// dialWithRetry keeps trying until the bridge starts listening or the
// deadline passes, so start order between the two processes does not
// matter.
func dialWithRetry(addr string, timeout time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(200 * time.Millisecond)
	}
}
