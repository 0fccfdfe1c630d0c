// cmd/soundrom is the host-side driver for the sound coprocessor engine:
// it loads a ROM image, wires it to one of a trace/play/render output, and
// runs it against a scripted command sequence (every subcommand reads one
// via --script), per spec.md S6.5.
//
// Grounded on valerio-go-jeebie's cmd/jeebie/main.go: a single cli.NewApp()
// with a flat flag set and an app.Action/subcommand split, slog.Error plus
// os.Exit(1) on fatal failure rather than panicking.
package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/config"
	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/engine"
	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/rom"
	"github.com/alinsavix/gauntlet-soundrom-ai-reveng-claude/sinks"
)

func main() {
	app := cli.NewApp()
	app.Name = "soundrom"
	app.Usage = "drive a reverse-engineered sound coprocessor ROM"
	app.Description = "Loads a sound coprocessor ROM image and plays, renders, traces, or scripts it."
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "path to the 48 KiB ROM image",
		},
		cli.StringFlag{
			Name:  "config",
			Usage: "path to an optional YAML tuning file",
		},
		cli.IntFlag{
			Name:  "sample-rate",
			Usage: "PCM sample rate for play/render modes",
		},
		cli.IntFlag{
			Name:  "filter-threshold",
			Usage: "POKEY mixer music_filter_threshold override",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn, or error",
		},
	}
	app.Commands = []cli.Command{
		traceCommand(),
		playCommand(),
		renderCommand(),
		driveCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("soundrom failed", "error", err)
		os.Exit(1)
	}
}

// settings merges the --config file under the global CLI flags, flags
// taking precedence when explicitly set (spec.md S6.5 "ambient stack").
type settings struct {
	romPath         string
	sampleRate      int
	filterThreshold byte
	logLevel        string
}

func resolveSettings(c *cli.Context) (settings, error) {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return settings{}, err
	}

	s := settings{
		romPath:         c.GlobalString("rom"),
		sampleRate:      cfg.SampleRate,
		filterThreshold: byte(cfg.FilterThreshold),
		logLevel:        cfg.LogLevel,
	}
	if c.GlobalIsSet("sample-rate") {
		s.sampleRate = c.GlobalInt("sample-rate")
	}
	if c.GlobalIsSet("filter-threshold") {
		s.filterThreshold = byte(c.GlobalInt("filter-threshold"))
	}
	if c.GlobalIsSet("log-level") {
		s.logLevel = c.GlobalString("log-level")
	}
	if s.romPath == "" {
		return settings{}, errors.New("a --rom path is required")
	}
	return s, nil
}

func newEngineLogger(level string) *engine.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return engine.NewLogger(slog.New(handler))
}

// loadROM reads and validates a ROM image from disk.
func loadROM(path string) (*rom.ROM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ROM: %w", err)
	}
	r, err := rom.Load(data)
	if err != nil {
		return nil, fmt.Errorf("loading ROM: %w", err)
	}
	return r, nil
}

// buildEngine loads the ROM named by s and wires an Engine to the given
// bus, applying the resolved logger and mixer filter threshold.
func buildEngine(s settings, bus sinks.Bus) (*engine.Engine, error) {
	r, err := loadROM(s.romPath)
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Options{
		ROM:             r,
		Bus:             bus,
		Logger:          newEngineLogger(s.logLevel),
		FilterThreshold: s.filterThreshold,
	})
}

func traceCommand() cli.Command {
	return cli.Command{
		Name:  "trace",
		Usage: "run a scripted sequence and dump chip register writes as JSONL",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "script", Usage: "scripted command sequence file (default: stdin)"},
			cli.StringFlag{Name: "out", Usage: "output path for the JSONL trace (default: stdout)"},
		},
		Action: func(c *cli.Context) error {
			s, err := resolveSettings(c)
			if err != nil {
				return err
			}

			trace := sinks.NewTraceSink()
			e, err := buildEngine(s, sinks.Bus{PSG: trace, FM: trace, Speech: trace, Mixer: trace})
			if err != nil {
				return err
			}
			var tickCount uint64
			trace.Tick = func() uint64 { return tickCount }

			script, err := openScript(c.String("script"))
			if err != nil {
				return err
			}
			defer script.Close()

			countTick := func() { tickCount++ }
			if err := runScriptWithTickHook(e, script, io.Discard, countTick); err != nil {
				return err
			}

			out := os.Stdout
			if path := c.String("out"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("creating trace output: %w", err)
				}
				defer f.Close()
				out = f
			}
			return trace.WriteJSONL(out)
		},
	}
}

func playCommand() cli.Command {
	return cli.Command{
		Name:  "play",
		Usage: "play a scripted sequence through the real-time audio backend",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "script", Usage: "scripted command sequence file (default: stdin)"},
		},
		Action: func(c *cli.Context) error {
			s, err := resolveSettings(c)
			if err != nil {
				return err
			}
			rate := s.sampleRate
			if rate == 0 {
				rate = 44100
			}

			otoSink, err := sinks.NewOtoSink(rate)
			if err != nil {
				return fmt.Errorf("opening audio backend: %w", err)
			}
			bus := sinks.Bus{PSG: otoSink, FM: otoSink, Speech: otoSink, Mixer: otoSink}
			e, err := buildEngine(s, bus)
			if err != nil {
				return err
			}

			script, err := openScript(c.String("script"))
			if err != nil {
				return err
			}
			defer script.Close()

			otoSink.Start()
			defer otoSink.Stop()
			pace := func() { time.Sleep(time.Second / engine.TickRateHz) }
			return runScriptWithTickHook(e, script, os.Stdout, pace)
		},
	}
}

func renderCommand() cli.Command {
	return cli.Command{
		Name:  "render",
		Usage: "render a scripted sequence to a raw float32 PCM file",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "script", Usage: "scripted command sequence file (default: stdin)"},
			cli.StringFlag{Name: "out", Usage: "output path for the rendered PCM (required)"},
			cli.IntFlag{Name: "frames-per-tick", Usage: "PCM samples rendered per engine tick", Value: 184},
		},
		Action: func(c *cli.Context) error {
			s, err := resolveSettings(c)
			if err != nil {
				return err
			}
			outPath := c.String("out")
			if outPath == "" {
				return errors.New("render requires --out")
			}
			rate := s.sampleRate
			if rate == 0 {
				rate = 44100
			}

			bank := sinks.NewPCMBank(rate)
			bus := sinks.Bus{PSG: bank, FM: bank, Speech: bank, Mixer: bank}
			e, err := buildEngine(s, bus)
			if err != nil {
				return err
			}

			script, err := openScript(c.String("script"))
			if err != nil {
				return err
			}
			defer script.Close()

			out, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("creating render output: %w", err)
			}
			defer out.Close()

			samplesPerTick := c.Int("frames-per-tick")
			var renderErr error
			renderTick := func() {
				if renderErr != nil {
					return
				}
				for i := 0; i < samplesPerTick; i++ {
					if err := binary.Write(out, binary.LittleEndian, bank.Sample()); err != nil {
						renderErr = fmt.Errorf("writing PCM sample: %w", err)
						return
					}
				}
			}
			if err := runScriptWithTickHook(e, script, os.Stdout, renderTick); err != nil {
				return err
			}
			return renderErr
		},
	}
}

func driveCommand() cli.Command {
	return cli.Command{
		Name:  "drive",
		Usage: "feed a scripted command sequence and print channel/queue/error state",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "script", Usage: "scripted command sequence file (default: stdin)"},
		},
		Action: func(c *cli.Context) error {
			s, err := resolveSettings(c)
			if err != nil {
				return err
			}

			trace := sinks.NewTraceSink()
			e, err := buildEngine(s, sinks.Bus{PSG: trace, FM: trace, Speech: trace, Mixer: trace})
			if err != nil {
				return err
			}

			script, err := openScript(c.String("script"))
			if err != nil {
				return err
			}
			defer script.Close()

			return runScript(e, script, os.Stdout)
		},
	}
}

func openScript(path string) (io.ReadCloser, error) {
	if path == "" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening script: %w", err)
	}
	return f, nil
}

// runScript drives e from a textual scenario script (spec.md S6.5 "scripted
// scenario driver"). Each line is one command:
//
//	push <hex>    push one host command byte, e.g. push 0x0D
//	tick [n]      run n engine ticks (default 1)
//	state <idx>   print one channel's snapshot
//	channels      print every live channel's snapshot
//	queue         print the speech/music queue depth
//	mixer         print the committed mixer split
//	errors        print the process-level error-flag byte
//	output        drain and print any queued host-output bytes
//	reset         reset the engine
//
// Blank lines and lines starting with # are ignored.
func runScript(e *engine.Engine, r io.Reader, w io.Writer) error {
	return runScriptWithTickHook(e, r, w, nil)
}

func runScriptWithTickHook(e *engine.Engine, r io.Reader, w io.Writer, onTick func()) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := runScriptLine(e, w, line, onTick); err != nil {
			return fmt.Errorf("script line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}

func runScriptLine(e *engine.Engine, w io.Writer, line string, onTick func()) error {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "push":
		if len(args) != 1 {
			return errors.New("push requires exactly one argument")
		}
		v, err := parseByte(args[0])
		if err != nil {
			return err
		}
		e.Push(v)

	case "tick":
		n := 1
		if len(args) == 1 {
			parsed, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid tick count %q: %w", args[0], err)
			}
			n = parsed
		}
		for i := 0; i < n; i++ {
			e.Tick()
			if onTick != nil {
				onTick()
			}
		}

	case "state":
		if len(args) != 1 {
			return errors.New("state requires a channel index")
		}
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid channel index %q: %w", args[0], err)
		}
		snap, err := e.ChannelState(idx)
		if err != nil {
			return err
		}
		printChannelSnapshot(w, snap)

	case "channels":
		for i := 0; i < engine.ChannelCount; i++ {
			snap, err := e.ChannelState(i)
			if err != nil {
				return err
			}
			if snap.Live {
				printChannelSnapshot(w, snap)
			}
		}

	case "queue":
		fmt.Fprintf(w, "speech queue: %d\n", e.SpeechQueueLen())

	case "mixer":
		speech, effects, music := e.Mixer()
		fmt.Fprintf(w, "mixer: speech=%d effects=%d music=%d\n", speech, effects, music)

	case "errors":
		fmt.Fprintf(w, "errors: 0x%02X\n", e.ErrorFlags())

	case "output":
		for {
			b, ok := e.PopOutput()
			if !ok {
				break
			}
			fmt.Fprintf(w, "output: 0x%02X\n", b)
		}

	case "reset":
		e.Reset()

	default:
		return fmt.Errorf("unknown script command %q", cmd)
	}
	return nil
}

func printChannelSnapshot(w io.Writer, snap engine.ChannelSnapshot) {
	fmt.Fprintf(w, "channel %2d: live=%-5v hwtype=%d cmd=0x%04X status=0x%02X seqptr=0x%04X vol=%-3d freq=%d\n",
		snap.Index, snap.Live, snap.HWType, snap.ActiveCmd, snap.Status, snap.SeqPtr, snap.Volume, snap.Frequency)
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), hexOrDecBase(s), 16)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q: %w", s, err)
	}
	if v > 0xFF {
		return 0, fmt.Errorf("value %q out of byte range", s)
	}
	return byte(v), nil
}

func hexOrDecBase(s string) int {
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		return 16
	}
	return 10
}
