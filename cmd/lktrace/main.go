package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/zboralski/lktrace/internal/trace"
	"github.com/zboralski/lktrace/internal/ui/colorize"
)

var (
	verbose bool
	color   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lktrace",
		Short: "Trace the syscalls of static RISC-V 64 Linux programs",
		Long: `lktrace runs a static RISC-V 64 Linux executable under Unicorn Engine and
records every syscall it makes, together with the memory its arguments point
at: paths, buffers, argv and envp, stat and sigaction structures.

Records are written in the binary trace format (optionally snappy framed)
and can be dumped, replayed into per-task call sequences, summarised, or
exported into SQLite.

Examples:
  lktrace run ./hello -o hello.trace            # trace a program
  lktrace run --insn 200 ./hello                # also show the first 200 instructions
  lktrace replay --level 2 hello.trace          # stable, diffable call listing
  lktrace replay --filter 'ret < 0' hello.trace # failing calls only
  lktrace stats hello.trace
  lktrace export --db traces.db hello.trace
  lktrace syscalls`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			switch color {
			case "always":
				colorize.SetEnabled(true)
			case "never":
				colorize.SetEnabled(false)
			default:
				colorize.Detect(os.Stdout)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")
	rootCmd.PersistentFlags().StringVar(&color, "color", "auto", "colorize output: auto, always or never")

	rootCmd.AddCommand(
		newRunCmd(),
		newDumpCmd(),
		newReplayCmd(),
		newStatsCmd(),
		newExportCmd(),
		newSyscallsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "%s %v\n", colorize.Error("Error:"), err)
		os.Exit(1)
	}
}

// outputWriter batches lines to stdout off the emulation thread.
type outputWriter struct {
	ch     chan string
	done   chan struct{}
	writer *bufio.Writer
}

func newOutputWriter() *outputWriter {
	w := &outputWriter{
		ch:     make(chan string, 2048),
		done:   make(chan struct{}),
		writer: bufio.NewWriterSize(os.Stdout, 64*1024),
	}
	go w.run()
	return w
}

func (w *outputWriter) run() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case line, ok := <-w.ch:
			if !ok {
				w.writer.Flush()
				close(w.done)
				return
			}
			w.writer.WriteString(line)
			w.writer.WriteByte('\n')
		case <-ticker.C:
			w.writer.Flush()
		}
	}
}

func (w *outputWriter) Write(line string) {
	w.ch <- line
}

func (w *outputWriter) Close() {
	close(w.ch)
	<-w.done
}

// kernelCall is one syscall serviced by the kernel, shown next to the
// instruction that made it.
type kernelCall struct {
	Tag    string
	Name   string
	Detail string
}

type callCollector struct {
	mu    sync.Mutex
	calls []kernelCall
}

func (c *callCollector) Add(call kernelCall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *callCollector) GetAndClear() []kernelCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	calls := c.calls
	c.calls = nil
	return calls
}

func formatLine(addr uint64, code []byte, dis string, funcName string, calls []kernelCall) string {
	var b strings.Builder
	b.Grow(256)

	visibleLen := 0

	b.WriteString(colorize.Address(addr))
	b.WriteString("  ")
	visibleLen += 8 + 2

	if hex := colorize.HexWord(code); hex != "" {
		b.WriteString(colorize.HexBytes(fmt.Sprintf("%-8s", hex)))
		b.WriteString("  ")
		visibleLen += 8 + 2
	}

	b.WriteString(colorize.Instruction(dis))
	visibleLen += len(dis)

	const insnCol = 50
	for visibleLen < insnCol {
		b.WriteByte(' ')
		visibleLen++
	}

	var categories trace.Tags
	var details []string
	for _, c := range calls {
		categories.Add(trace.Tag(c.Tag))
		if c.Detail != "" {
			details = append(details, c.Detail)
		}
	}
	tags := append(colorize.InstructionTags(dis), categories.Strings()...)

	if len(tags) > 0 || len(details) > 0 {
		var parts []string
		if len(tags) > 0 {
			parts = append(parts, strings.Join(tags, " "))
		}
		if len(details) > 0 {
			parts = append(parts, strings.Join(details, ", "))
		}
		b.WriteString(colorize.Comment("; " + strings.Join(parts, " ")))
		b.WriteString("  ")
	}

	var hasContent bool
	if funcName != "" {
		b.WriteString(colorize.FuncName(funcName))
		hasContent = true
	}
	for _, c := range calls {
		if hasContent {
			b.WriteByte(' ')
		}
		b.WriteString(colorize.FuncName(c.Name))
		hasContent = true
	}

	return strings.TrimRight(b.String(), " ")
}

// functionBanner heads the first instruction executed in a function.
func functionBanner(addr uint64, name string) string {
	return fmt.Sprintf("%s %s:", colorize.Address(addr), colorize.FuncName("<"+name+">"))
}

func relPath(path string) string {
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, path); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return path
}
