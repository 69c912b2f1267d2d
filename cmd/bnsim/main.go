// bnsim simulates a transport-protocol connection crossing a single
// bottleneck link: a client uploads to a server through a tail-drop
// queue with configurable bandwidth, propagation delay, and depth,
// while the server's packets return directly.  Queue events are printed
// to stdout, one line each.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"

	"github.com/iti/bnsim"
	"github.com/iti/bnsim/mtp"
)

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: bnsim [-b bytes-per-sec] [-c name] [-d delay] [-q depth] [-t horizon] [-x scenario-file] [-trace file] [-stats file]\n\n")
}

// fillerEmit supplies the client stream's endless payload
func fillerEmit(off uint64, buf []byte) int {
	for i := range buf {
		buf[i] = 'A'
	}
	return len(buf)
}

// run builds the scenario from args and drives it, returning the
// process exit code.  The queue event log goes to stdout, diagnostics
// to stderr.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bnsim", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	bwArg := fs.String("b", "", "bottleneck bandwidth, bytes per second")
	ccArg := fs.String("c", "", "congestion controller name")
	delayArg := fs.String("d", "", "propagation delay, seconds")
	depthArg := fs.String("q", "", "queue depth, seconds of buffering")
	horizonArg := fs.String("t", "", "virtual seconds to simulate")
	scenarioArg := fs.String("x", "", "scenario file (.yaml or .json)")
	traceArg := fs.String("trace", "", "trace output file (.yaml or .json)")
	statsArg := fs.String("stats", "", "summary output file (.yaml or .json)")

	if err := fs.Parse(args); err != nil {
		usage(stdout)
		return 0
	}

	cfg := bnsim.DefaultScenarioCfg()
	if len(*scenarioArg) > 0 {
		useYAML := path.Ext(*scenarioArg) != ".json" && path.Ext(*scenarioArg) != ".JSON"
		read, err := bnsim.ReadScenarioCfg(*scenarioArg, useYAML, []byte{})
		if err != nil {
			fmt.Fprintf(stderr, "cannot read scenario file %s: %v\n", *scenarioArg, err)
			return 1
		}
		cfg = read
	}

	if len(*bwArg) > 0 {
		bw, err := strconv.ParseFloat(*bwArg, 64)
		if err != nil {
			fmt.Fprintf(stderr, "invalid bandwidth: %s\n", *bwArg)
			return 1
		}
		cfg.Bandwidth = bw
	}
	if len(*ccArg) > 0 {
		cfg.CC = *ccArg
	}
	if len(*delayArg) > 0 {
		delay, err := strconv.ParseFloat(*delayArg, 64)
		if err != nil {
			fmt.Fprintf(stderr, "invalid delay value: %s\n", *delayArg)
			return 1
		}
		cfg.Delay = delay
	}
	if len(*depthArg) > 0 {
		depth, err := strconv.ParseFloat(*depthArg, 64)
		if err != nil {
			fmt.Fprintf(stderr, "invalid queue depth: %s\n", *depthArg)
			return 1
		}
		cfg.Depth = depth
	}
	if len(*horizonArg) > 0 {
		horizon, err := strconv.ParseFloat(*horizonArg, 64)
		if err != nil {
			fmt.Fprintf(stderr, "invalid horizon: %s\n", *horizonArg)
			return 1
		}
		cfg.Horizon = horizon
	}
	if len(*traceArg) > 0 {
		cfg.TraceFile = *traceArg
	}
	if len(*statsArg) > 0 {
		cfg.StatsFile = *statsArg
	}

	ccCtor, present := mtp.LookupCC(cfg.CC)
	if !present {
		fmt.Fprintf(stderr, "unknown congestion controller: %s\n", cfg.CC)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid scenario: %v\n", err)
		return 1
	}

	tm := bnsim.CreateTraceManager(cfg.Name, len(cfg.TraceFile) > 0)
	sim := bnsim.CreateSim(cfg.StartTime, tm)
	sim.SetEventLog(stdout)

	bottleneck := bnsim.CreateQueue(sim, "bottleneck", cfg.Delay, cfg.Bandwidth, cfg.Depth)
	serverEngine := mtp.CreateEngine(mtp.Config{
		Name: "server",
		Now:  sim.NowMillis,
		CC:   ccCtor,
	})
	server := bnsim.CreateEndpoint(sim, "server", &bnsim.AcceptConfig{Engine: serverEngine})
	clientEngine := mtp.CreateEngine(mtp.Config{
		Name: "client",
		Now:  sim.NowMillis,
		CC:   ccCtor,
		OnStreamOpen: func(st *mtp.Stream) {
			st.Emit = fillerEmit
		},
	})
	client := bnsim.CreateEndpoint(sim, "client", nil)

	// client uploads to server through the bottleneck queue
	client.SetEgress(bottleneck)
	bottleneck.SetDownstream(server)
	server.SetEgress(client)

	if err := client.Connect(clientEngine, server.Addr()); err != nil {
		fmt.Fprintf(stderr, "connect failed: %v\n", err)
		return 1
	}
	if _, err := client.Conn().(*mtp.Conn).OpenStream(1); err != nil {
		fmt.Fprintf(stderr, "cannot open stream: %v\n", err)
		return 1
	}

	sim.AddNode(bottleneck)
	sim.AddNode(server)
	sim.AddNode(client)
	sim.RunUntil(cfg.StartTime + cfg.Horizon)

	if len(cfg.TraceFile) > 0 {
		tm.WriteToFile(cfg.TraceFile)
	}
	if len(cfg.StatsFile) > 0 {
		summary := bnsim.SummarizeRun(cfg.Name, bottleneck.Stats())
		if err := summary.WriteToFile(cfg.StatsFile); err != nil {
			fmt.Fprintf(stderr, "cannot write summary: %v\n", err)
			return 1
		}
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
