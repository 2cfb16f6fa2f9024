// stepcore-sim runs the stepcore kernel on a virtual MCU. With scenario
// files it executes each and reports the outcome; without, it reads
// commands from stdin.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"stepcore/core"
	"stepcore/host/mcu"
	"stepcore/sim"
)

var (
	logLevel  = flag.String("log-level", "info", "log level (debug shows every response)")
	showTrace = flag.BoolP("trace", "t", false, "print pin transitions after each scenario")
	showResp  = flag.BoolP("responses", "r", false, "print responses after each scenario")
	clockFreq = flag.Uint32("clock-freq", 1000000, "interactive mode: clock frequency in Hz")
	bothEdge  = flag.Bool("both-edge", false, "interactive mode: platform steps on both edges")
	pulser    = flag.Bool("pulser", false, "interactive mode: emit tight step pulses in hardware")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] [scenario.yaml ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("invalid log level %q: %v", *logLevel, err)
	}
	log.SetLevel(level)

	if flag.NArg() == 0 {
		interactive()
		return
	}

	failed := 0
	for _, path := range flag.Args() {
		if !runScenario(path) {
			failed++
		}
	}
	if failed > 0 {
		log.Errorf("%d of %d scenarios failed", failed, flag.NArg())
		os.Exit(1)
	}
}

func runScenario(path string) bool {
	entry := log.WithField("scenario", path)
	s, err := sim.LoadScenario(path)
	if err != nil {
		entry.WithError(err).Error("invalid scenario")
		return false
	}
	if s.Name != "" {
		entry = entry.WithField("name", s.Name)
	}
	m, err := s.Run(entry)
	printRun(os.Stdout, m)
	if err != nil {
		entry.WithError(err).Error("failed")
		return false
	}
	entry.WithFields(log.Fields{
		"clock":      m.Now(),
		"interrupts": m.Interrupts(),
		"responses":  len(m.Responses()),
	}).Info("passed")
	return true
}

func printRun(w io.Writer, m *sim.Machine) {
	if *showTrace {
		for _, e := range m.Trace() {
			kind := "set"
			if e.Pulse {
				kind = "pulse"
			}
			fmt.Fprintf(w, "%10d  pin %-3d %-5s %v\n", e.Clock, e.Pin, kind, e.Value)
		}
	}
	if *showResp {
		for _, r := range m.Responses() {
			fmt.Fprintf(w, "%10d  %s\n", r.Clock, r.Text)
		}
	}
}

func interactive() {
	cfg := core.DefaultConfig(*clockFreq)
	cfg.StepperBothEdge = *bothEdge
	opts := []sim.Option{sim.WithLogger(log.StandardLogger())}
	if *pulser {
		opts = append(opts, sim.WithPulser())
	}
	m := sim.New(cfg, opts...)

	fmt.Println("stepcore simulator - type 'help' for commands, 'quit' to exit")
	scanner := bufio.NewScanner(os.Stdin)
	seen := 0
	for {
		fmt.Printf("[%d]> ", m.Now())
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if quit := handleLine(m, line); quit {
			return
		}
		// echo what the kernel said since the last prompt
		resps := m.Responses()
		for _, r := range resps[seen:] {
			fmt.Printf("  %s\n", r.Text)
		}
		seen = len(resps)
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Fatal("reading input")
	}
}

func handleLine(m *sim.Machine, line string) bool {
	parts := strings.Fields(line)
	switch parts[0] {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		printHelp()
	case "dict":
		d, raw, err := mcu.RetrieveDictionary(m.Identify, mcu.DefaultChunkSize)
		if err != nil {
			log.WithError(err).Error("dictionary")
			break
		}
		fmt.Printf("Dictionary: %d bytes compressed\n", len(raw))
		d.Print(os.Stdout)
	case "run", "until":
		if len(parts) != 2 {
			log.Errorf("usage: %s <ticks>", parts[0])
			break
		}
		v, err := strconv.ParseUint(parts[1], 0, 32)
		if err != nil {
			log.WithError(err).Error("bad tick count")
			break
		}
		if parts[0] == "run" {
			m.RunFor(uint32(v))
		} else {
			m.RunUntil(uint32(v))
		}
	case "pin":
		if len(parts) != 3 {
			log.Error("usage: pin <n> <0|1>")
			break
		}
		pin, err1 := strconv.ParseUint(parts[1], 0, 32)
		val, err2 := strconv.ParseBool(parts[2])
		if err1 != nil || err2 != nil {
			log.Error("usage: pin <n> <0|1>")
			break
		}
		m.SetInput(core.GPIOPin(pin), val)
	case "trace":
		for _, e := range m.Trace() {
			fmt.Printf("%10d  pin %-3d %v\n", e.Clock, e.Pin, e.Value)
		}
	case "timing":
		for _, e := range m.Kernel().TimingEvents() {
			fmt.Printf("%10d  %-13s oid=%d v1=%d v2=%d\n", e.Clock, e.Name(), e.OID, e.Value1, e.Value2)
		}
	default:
		if err := m.Send(line); err != nil {
			log.WithError(err).Error("command rejected")
		}
	}
	return false
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  <command> k=v ...  - send a kernel command, e.g. queue_step oid=0 interval=1000 count=10 add=0")
	fmt.Println("  run <ticks>        - advance the clock")
	fmt.Println("  until <clock>      - advance the clock to an absolute value")
	fmt.Println("  pin <n> <0|1>      - drive an input pin")
	fmt.Println("  trace              - print output pin transitions")
	fmt.Println("  timing             - dump the kernel timing ring")
	fmt.Println("  dict               - fetch and print the data dictionary")
	fmt.Println("  quit/exit/q        - exit")
	fmt.Println()
}
