package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zboralski/lktrace/internal/analyze"
	glog "github.com/zboralski/lktrace/internal/log"
	"github.com/zboralski/lktrace/internal/store"
	"github.com/zboralski/lktrace/internal/syscalls"
	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/tracefile"
	"github.com/zboralski/lktrace/internal/ui/browse"
	"github.com/zboralski/lktrace/internal/ui/colorize"
)

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <trace>",
		Short: "Print one line per record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			glog.Init(verbose)
			r, err := tracefile.Open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()
			n, err := analyze.Dump(cmd.OutOrStdout(), r, nil)
			if err != nil {
				return fmt.Errorf("after %d records: %w", n, err)
			}
			return nil
		},
	}
}

func newReplayCmd() *cobra.Command {
	var level int
	var filter string
	var tui bool
	cmd := &cobra.Command{
		Use:   "replay <trace>",
		Short: "Pair entries with exits and print each task's calls",
		Long: `Replay pairs every syscall entry with its exit per task, follows clone
children, and marks signal delivery around handlers registered with
rt_sigaction.

Levels:
  0  raw records, same as dump
  1  paired calls with user stack pointers
  2  paired calls with task ids, timestamps and inode data masked

--filter takes a JavaScript expression over sysno, name, ret, tid, pc,
args, returned and strings.

--tui opens an interactive pager with one page per task.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			glog.Init(verbose)
			r, err := tracefile.Open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			if level == analyze.LevelRaw {
				_, err := analyze.Dump(cmd.OutOrStdout(), r, nil)
				return err
			}

			recs, err := analyze.ReadAll(r)
			if err != nil {
				return err
			}
			renderer := analyze.NewRenderer(nil, level)
			if filter != "" {
				f, err := analyze.CompileFilter(filter)
				if err != nil {
					return err
				}
				renderer.Filter = f
			}

			session := analyze.Replay(recs)
			if tui {
				pages, err := browse.Pages(renderer, session)
				if err != nil {
					return err
				}
				return browse.Run(pages)
			}
			if err := renderer.WriteSession(cmd.OutOrStdout(), session); err != nil {
				return err
			}
			for _, w := range session.Warnings {
				fmt.Fprintf(os.Stderr, "%s %s\n", colorize.Error("warning:"), w)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&level, "level", "l", analyze.LevelReplay, "render level: 0, 1 or 2")
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "JavaScript filter expression")
	cmd.Flags().BoolVar(&tui, "tui", false, "browse tasks interactively")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <trace>",
		Short: "Summarise a trace per syscall",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			glog.Init(verbose)
			r, err := tracefile.Open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			st := analyze.NewStats(nil)
			recs, err := analyze.ReadAll(r)
			for _, rec := range recs {
				st.Add(rec)
			}
			if rerr := st.Render(cmd.OutOrStdout(), !colorize.IsDisabled()); rerr != nil {
				return rerr
			}
			return err
		},
	}
}

func newExportCmd() *cobra.Command {
	var dbPath string
	var list bool
	cmd := &cobra.Command{
		Use:   "export [--db file] <trace>...",
		Short: "Import traces into a SQLite database",
		RunE: func(cmd *cobra.Command, args []string) error {
			glog.Init(verbose)
			ctx := context.Background()
			s, err := store.Open(store.DefaultConfig(dbPath))
			if err != nil {
				return err
			}
			defer s.Close()

			for _, path := range args {
				r, err := tracefile.Open(path)
				if err != nil {
					return err
				}
				sess, err := s.Import(ctx, path, r, nil)
				r.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %d records  %s\n", sess.ID, sess.Records, path)
			}

			if list || len(args) == 0 {
				sessions, err := s.ListSessions(ctx)
				if err != nil {
					return err
				}
				for _, sess := range sessions {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %6d  %s\n",
						sess.ID, sess.Created.Format("2006-01-02 15:04:05"), sess.Records, sess.Source)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "lktrace.db", "SQLite database")
	cmd.Flags().BoolVar(&list, "list", false, "list stored sessions")
	return cmd
}

func newSyscallsCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "syscalls",
		Short: "List the payload definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if all {
				tbl := sysno.RISCV64()
				for _, nr := range tbl.Numbers() {
					name := tbl.NameOr(nr)
					if _, ok := syscalls.DefaultRegistry.Lookup(nr); ok {
						name = colorize.FuncName(name)
					}
					fmt.Fprintf(w, "%4d  %s\n", nr, name)
				}
				return nil
			}
			for _, def := range syscalls.DefaultRegistry.List() {
				fmt.Fprintf(w, "%4d  %s %s\n", def.Sysno, colorize.FuncName(fmt.Sprintf("%-18s", def.Name)),
					colorize.Tag("#"+string(def.Category)))
				for _, a := range def.Entry {
					fmt.Fprintf(w, "        in   %s\n", colorize.Detail(a.String()))
				}
				for _, a := range def.Exit {
					fmt.Fprintf(w, "        out  %s\n", colorize.Detail(a.String()))
				}
			}
			fmt.Fprintf(w, "%s definitions, table %s\n",
				colorize.Header(fmt.Sprint(syscalls.DefaultRegistry.Count())), strings.ToLower(sysno.TableVersion))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "list the whole syscall table")
	return cmd
}
