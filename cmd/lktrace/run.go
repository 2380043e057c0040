package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/zboralski/lktrace/internal/config"
	"github.com/zboralski/lktrace/internal/emulator"
	"github.com/zboralski/lktrace/internal/kernel"
	glog "github.com/zboralski/lktrace/internal/log"
	"github.com/zboralski/lktrace/internal/syscalls"
	_ "github.com/zboralski/lktrace/internal/syscalls/linux"
	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
	"github.com/zboralski/lktrace/internal/tracefile"
	"github.com/zboralski/lktrace/internal/ui/colorize"
	"go.uber.org/zap"
)

type runOptions struct {
	configPath string
	output     string
	compress   bool
	syscalls   []string
	unmatched  bool
	insn       int
	limit      uint64
	until      string
	env        []string
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run [flags] <binary> [args...]",
		Short: "Run a static RISC-V 64 executable and record its syscalls",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, &opts, args)
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "trace file (overrides config)")
	cmd.Flags().BoolVarP(&opts.compress, "compress", "z", false, "snappy-compress the trace")
	cmd.Flags().StringSliceVarP(&opts.syscalls, "syscalls", "s", nil, "only trace these syscalls (names or numbers)")
	cmd.Flags().BoolVar(&opts.unmatched, "unmatched", true, "record syscalls without payload definitions")
	cmd.Flags().IntVarP(&opts.insn, "insn", "n", 0, "disassemble the first N instructions")
	cmd.Flags().Uint64Var(&opts.limit, "limit", 0, "stop after N instructions (0 = no limit)")
	cmd.Flags().StringVar(&opts.until, "until", "", "stop when execution reaches this symbol")
	cmd.Flags().StringArrayVarP(&opts.env, "env", "e", nil, "guest environment variable KEY=VALUE")
	return cmd
}

func loadConfig(cmd *cobra.Command, opts *runOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output = opts.output
	}
	if flags.Changed("compress") {
		cfg.Compress = opts.compress
	}
	if flags.Changed("syscalls") {
		cfg.Syscalls = opts.syscalls
	}
	if verbose {
		cfg.Debug = true
	}
	return cfg, cfg.Validate()
}

func runTrace(cmd *cobra.Command, opts *runOptions, args []string) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	glog.Init(cfg.Debug)
	syscalls.Debug = cfg.Debug
	kernel.Debug = cfg.Debug
	log := glog.Get()
	defer log.Sync()

	tbl, err := sysno.ForArch(cfg.Arch)
	if err != nil {
		return err
	}
	only, err := cfg.SyscallNumbers()
	if err != nil {
		return err
	}

	emu, err := emulator.New()
	if err != nil {
		return fmt.Errorf("create emulator: %w", err)
	}
	defer emu.Close()

	binaryPath := args[0]
	info, err := emu.LoadELF(binaryPath)
	if err != nil {
		return fmt.Errorf("load ELF: %w", err)
	}
	if _, err := emu.SetupStack(info, args, opts.env); err != nil {
		return fmt.Errorf("set up stack: %w", err)
	}

	out, err := tracefile.Create(cfg.Output, cfg.Compress)
	if err != nil {
		return err
	}

	tracer := syscalls.NewTracer(emu, out)
	tracer.Table = tbl
	tracer.Unmatched = opts.unmatched
	tracer.Log = log
	tracer.SetFilter(only)
	cfg.Apply(tracer.Extractor)

	k := kernel.New()
	k.Log = log
	k.SetBreak(info.EndAddr)

	collector := &callCollector{}
	calls := 0
	k.OnCall = func(category trace.Tag, name, detail string) {
		calls++
		collector.Add(kernelCall{Tag: string(category), Name: name, Detail: detail})
	}

	emu.SetSyscallHandler(k)
	emu.SetSyscallObserver(tracer)

	var untilAddr uint64
	reached := false
	if opts.until != "" {
		if untilAddr = info.FindSymbol(opts.until); untilAddr == 0 {
			return fmt.Errorf("--until: no symbol %q in %s", opts.until, binaryPath)
		}
		emu.HookAddress(untilAddr, func(*emulator.Emulator) bool {
			reached = true
			return true
		})
	}

	var lines *outputWriter
	if opts.insn > 0 {
		lines = newOutputWriter()
		lines.Write(fmt.Sprintf("%s lktrace ─ RISC-V 64 syscall tracer", colorize.Header("▶")))
		lines.Write(fmt.Sprintf("  %s %s", colorize.Detail("Loading:"), relPath(binaryPath)))
		lines.Write(fmt.Sprintf("  %s %s  %s %s  %s %s",
			colorize.Detail("Base:"), colorize.Address(info.BaseAddr),
			colorize.Detail("Entry:"), colorize.Address(info.Entry),
			colorize.Detail("Break:"), colorize.Address(info.EndAddr)))
		lines.Write("")

		addrToSym := make(map[uint64]string, len(info.Symbols))
		for name, addr := range info.Symbols {
			if existing, ok := addrToSym[addr]; !ok || len(name) < len(existing) {
				addrToSym[addr] = name
			}
		}

		count := 0
		for addr, name := range addrToSym {
			if addr == untilAddr {
				continue
			}
			addr, name := addr, name
			emu.HookAddress(addr, func(e *emulator.Emulator) bool {
				e.RemoveAddressHook(addr)
				if count < opts.insn {
					lines.Write(functionBanner(addr, name))
				}
				return false
			})
		}
		emu.HookCode(func(e *emulator.Emulator, addr uint64, size uint32) {
			count++
			if count > opts.insn {
				return
			}
			code := make([]byte, size)
			e.ReadGuest(addr, code)
			dis := colorize.Disasm(code)
			lines.Write(formatLine(addr, code, dis, addrToSym[addr], collector.GetAndClear()))
			if colorize.IsBlockEnd(dis) {
				lines.Write("")
			}
		})
	}

	log.Info("run",
		zap.String("binary", binaryPath),
		glog.Addr(info.Entry),
		zap.String("output", cfg.Output),
		zap.Int("definitions", tracer.Registry.Count()),
	)
	runErr := emu.RunFrom(info.Entry, opts.limit)
	if lines != nil {
		lines.Close()
	}
	if err := out.Close(); err != nil {
		return err
	}

	exited, code := emu.Exited()
	fmt.Fprintf(os.Stderr, "%s %s records, %s, %d syscalls serviced",
		colorize.Header("▶"),
		humanize.Comma(int64(out.Records())),
		humanize.Bytes(uint64(out.Bytes())),
		calls)
	if exited {
		fmt.Fprintf(os.Stderr, ", exit status %d", code)
	}
	if reached {
		fmt.Fprintf(os.Stderr, ", stopped at %s", opts.until)
	}
	fmt.Fprintf(os.Stderr, " -> %s\n", cfg.Output)

	if runErr != nil && !exited {
		pc := emu.PC()
		if sym, off := info.SymbolAt(pc); sym != "" {
			return fmt.Errorf("emulation stopped at 0x%x (%s+0x%x): %w", pc, sym, off, runErr)
		}
		return fmt.Errorf("emulation stopped at 0x%x: %w", pc, runErr)
	}
	if exited && code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// exitError carries the guest's exit status out of the command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("guest exited with status %d", e.code)
}
