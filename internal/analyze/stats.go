package analyze

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
)

// SyscallStats are the counters for one syscall number.
type SyscallStats struct {
	Sysno        uint64
	Name         string
	Calls        int // entry records
	Errors       int // exit records with a negative result
	PayloadBytes uint64
	Payloads     int
}

// Stats summarises a trace.
type Stats struct {
	Records      int
	Entries      int
	Exits        int
	PayloadBytes uint64

	tbl   *sysno.Table
	tids  map[uint64]bool
	calls map[uint64]*SyscallStats
}

// NewStats creates empty counters.
func NewStats(tbl *sysno.Table) *Stats {
	if tbl == nil {
		tbl = sysno.RISCV64()
	}
	return &Stats{
		tbl:   tbl,
		tids:  make(map[uint64]bool),
		calls: make(map[uint64]*SyscallStats),
	}
}

// Add counts one record.
func (s *Stats) Add(rec *trace.Record) {
	s.Records++
	s.tids[rec.TID] = true

	st, ok := s.calls[rec.Sysno]
	if !ok {
		st = &SyscallStats{Sysno: rec.Sysno, Name: s.tbl.NameOr(rec.Sysno)}
		s.calls[rec.Sysno] = st
	}
	switch rec.Phase {
	case trace.PhaseIn:
		s.Entries++
		st.Calls++
	case trace.PhaseOut:
		s.Exits++
		if !rec.Succeeded() {
			st.Errors++
		}
	}
	for _, p := range rec.Payloads {
		st.Payloads++
		st.PayloadBytes += uint64(len(p.Data))
		s.PayloadBytes += uint64(len(p.Data))
	}
}

// Tasks returns the number of distinct task ids seen.
func (s *Stats) Tasks() int {
	return len(s.tids)
}

// Syscalls returns per-syscall counters, busiest first.
func (s *Stats) Syscalls() []*SyscallStats {
	out := make([]*SyscallStats, 0, len(s.calls))
	for _, st := range s.calls {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Calls != out[j].Calls {
			return out[i].Calls > out[j].Calls
		}
		return out[i].Sysno < out[j].Sysno
	})
	return out
}

// Styles for the stats table.
var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// Render writes the summary. With color false the output is plain text.
func (s *Stats) Render(w io.Writer, color bool) error {
	style := func(st lipgloss.Style, text string) string {
		if !color {
			return text
		}
		return st.Render(text)
	}
	cell := func(st lipgloss.Style, text string, width int, right bool) string {
		pad := width - lipgloss.Width(text)
		if pad < 0 {
			pad = 0
		}
		if right {
			return strings.Repeat(" ", pad) + style(st, text)
		}
		return style(st, text) + strings.Repeat(" ", pad)
	}

	var b strings.Builder
	fmt.Fprintln(&b, style(titleStyle, "Trace summary"))
	fmt.Fprintf(&b, "records %s  entries %s  exits %s  tasks %d  payload %s\n\n",
		humanize.Comma(int64(s.Records)),
		humanize.Comma(int64(s.Entries)),
		humanize.Comma(int64(s.Exits)),
		s.Tasks(),
		humanize.Bytes(s.PayloadBytes),
	)

	nameWidth := len("syscall")
	for _, st := range s.calls {
		if len(st.Name) > nameWidth {
			nameWidth = len(st.Name)
		}
	}

	fmt.Fprintf(&b, "%s  %s  %s  %s  %s\n",
		cell(headerStyle, "nr", 4, true),
		cell(headerStyle, "syscall", nameWidth, false),
		cell(headerStyle, "calls", 8, true),
		cell(headerStyle, "errors", 8, true),
		cell(headerStyle, "payload", 10, true),
	)
	for _, st := range s.Syscalls() {
		errs := cell(dimStyle, "0", 8, true)
		if st.Errors > 0 {
			errs = cell(errorStyle, humanize.Comma(int64(st.Errors)), 8, true)
		}
		fmt.Fprintf(&b, "%s  %s  %s  %s  %s\n",
			cell(dimStyle, fmt.Sprint(st.Sysno), 4, true),
			cell(nameStyle, st.Name, nameWidth, false),
			cell(lipgloss.NewStyle(), humanize.Comma(int64(st.Calls)), 8, true),
			errs,
			cell(dimStyle, humanize.Bytes(st.PayloadBytes), 10, true),
		)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
