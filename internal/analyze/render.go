package analyze

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/zboralski/lktrace/internal/abi"
	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
)

// Render levels.
const (
	LevelRaw    = 0 // one line per record
	LevelReplay = 1 // paired calls
	LevelStable = 2 // paired calls with run-specific values masked
)

// renderFunc fills args in place and returns the argument count to show
// and the rendered result.
type renderFunc func(r *Renderer, c *Call, args []string) (int, string)

// Renderer formats replayed calls as name(args) -> result.
type Renderer struct {
	Table  *sysno.Table
	Level  int
	Filter *Filter

	tids map[int64]string
}

// NewRenderer creates a renderer for the given syscall table.
func NewRenderer(tbl *sysno.Table, level int) *Renderer {
	if tbl == nil {
		tbl = sysno.RISCV64()
	}
	return &Renderer{Table: tbl, Level: level, tids: make(map[int64]string)}
}

// maskTID replaces a task id with a stable tid_N label at LevelStable.
func (r *Renderer) maskTID(id int64) string {
	if r.Level < LevelStable {
		return fmt.Sprintf("%#x", id)
	}
	if name, ok := r.tids[id]; ok {
		return name
	}
	name := fmt.Sprintf("tid_%d", len(r.tids))
	r.tids[id] = name
	return name
}

// Render formats one call.
func (r *Renderer) Render(c *Call) string {
	switch c.Signal {
	case SignalEnter:
		return fmt.Sprintf("Signal[%s] enter..", sysno.SignalName(c.Signo))
	case SignalExit:
		return fmt.Sprintf("Signal[%s] exit..\n%s", sysno.SignalName(c.Signo), r.renderCall(c))
	}
	return r.renderCall(c)
}

func (r *Renderer) renderCall(c *Call) string {
	args := make([]string, 7)
	for i := range args {
		args[i] = fmt.Sprintf("%#x", c.Args[i])
	}
	args[0] = fmt.Sprintf("%#x", c.OrigA0)

	name := r.Table.NameOr(c.Sysno)
	argc, result := 6, hexResult(c)
	if fn, ok := renderers[c.Sysno]; ok {
		argc, result = fn(r, c, args)
	}
	if !c.Returned {
		result = "?"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s) -> %s", name, strings.Join(args[:argc], ", "), result)
	if r.Level < LevelStable {
		fmt.Fprintf(&b, ", usp: %#x", c.SP)
	}
	if c.Killed {
		b.WriteString(" <killed?>")
	}
	return b.String()
}

// errnoResult renders 0 and errors by name, positive results in hex.
func errnoResult(c *Call) string {
	if c.Ret <= 0 {
		return sysno.ErrnoName(c.Ret)
	}
	return fmt.Sprintf("%#x", c.Ret)
}

// hexResult renders errors by name and everything else in hex.
func hexResult(c *Call) string {
	if c.Ret < 0 {
		return sysno.ErrnoName(c.Ret)
	}
	return fmt.Sprintf("%#x", c.Ret)
}

func quote(data []byte) string {
	return strconv.Quote(abi.CString(data))
}

// path replaces args[idx] with the string payload at idx.
func path(c *Call, args []string, idx int) {
	if p, ok := c.First(idx); ok {
		args[idx] = quote(p.Data)
	}
}

// dirfd renders AT_FDCWD by name.
func dirfd(args []string, idx int, v uint64) {
	if v == abi.AT_FDCWD {
		args[idx] = "AT_FDCWD"
	}
}

// decode unpacks the payload at idx into v.
func decode(c *Call, idx int, v interface{}) bool {
	p, ok := c.First(idx)
	if !ok || len(p.Data) < abi.Sizeof(v) {
		return false
	}
	return abi.Unpack(p.Data, v) == nil
}

func common(argc int) renderFunc {
	return func(r *Renderer, c *Call, args []string) (int, string) {
		return argc, errnoResult(c)
	}
}

// atPath renders (dirfd, path, ...) calls.
func atPath(argc int) renderFunc {
	return func(r *Renderer, c *Call, args []string) (int, string) {
		dirfd(args, 0, c.OrigA0)
		path(c, args, 1)
		return argc, errnoResult(c)
	}
}

// paths renders calls whose string arguments sit at the given slots.
func paths(argc int, idx ...int) renderFunc {
	return func(r *Renderer, c *Call, args []string) (int, string) {
		for _, i := range idx {
			path(c, args, i)
		}
		return argc, errnoResult(c)
	}
}

var renderers map[uint64]renderFunc

func init() {
	renderers = map[uint64]renderFunc{
		sysno.IOCTL:           common(3),
		sysno.FCNTL:           common(3),
		sysno.DUP3:            common(3),
		sysno.CLOSE:           common(1),
		sysno.LSEEK:           common(3),
		sysno.SENDFILE:        common(4),
		sysno.WRITEV:          common(3),
		sysno.EXIT:            common(1),
		sysno.EXIT_GROUP:      common(1),
		sysno.SET_ROBUST_LIST: common(2),
		sysno.MSYNC:           common(3),
		sysno.MUNMAP:          common(2),
		sysno.GETRANDOM:       common(3),
		sysno.TGKILL:          common(3),
		sysno.GETDENTS64:      common(3),
		sysno.GETTID:          common(0),
		sysno.GETUID:          common(0),
		sysno.GETEUID:         common(0),
		sysno.GETGID:          common(0),
		sysno.GETEGID:         common(0),

		sysno.OPENAT:    atPath(4),
		sysno.FACCESSAT: atPath(3),
		sysno.MKDIRAT:   atPath(3),
		sysno.MKNODAT:   atPath(4),
		sysno.UNLINKAT:  atPath(3),
		sysno.FCHMODAT:  atPath(4),
		sysno.FCHOWNAT:  atPath(5),
		sysno.UTIMENSAT: atPath(4),

		sysno.GETCWD:    paths(2, 0),
		sysno.CHDIR:     paths(1, 0),
		sysno.CHROOT:    paths(1, 0),
		sysno.MOUNT:     paths(5, 0, 1),
		sysno.SYMLINKAT: renderSymlinkat,
		sysno.LINKAT:    renderLinkat,
		sysno.RENAMEAT2: renderLinkat,

		sysno.FSTATAT:        renderFstatat,
		sysno.FSTAT:          renderFstat,
		sysno.STATFS:         renderStatfs,
		sysno.READLINKAT:     renderReadlinkat,
		sysno.READ:           renderRead,
		sysno.WRITE:          renderWrite,
		sysno.EXECVE:         renderExecve,
		sysno.UNAME:          renderUname,
		sysno.BRK:            renderBrk,
		sysno.MMAP:           renderMmap,
		sysno.MPROTECT:       renderMprotect,
		sysno.RT_SIGACTION:   renderSigaction,
		sysno.RT_SIGPROCMASK: renderSigprocmask,
		sysno.PRLIMIT64:      renderPrlimit,
		sysno.CLOCK_GETTIME:  renderClockGettime,
		sysno.PIPE2:          renderPipe2,
		sysno.WAIT4:          renderWait4,
		sysno.KILL:           renderKill,
		sysno.CLONE:          renderClone,

		sysno.SET_TID_ADDRESS: maskedResult(1),
		sysno.GETPID:          maskedResult(0),
		sysno.GETPPID:         maskedResult(0),
	}
}

func maskedResult(argc int) renderFunc {
	return func(r *Renderer, c *Call, args []string) (int, string) {
		return argc, r.maskTID(c.Ret)
	}
}

func renderSymlinkat(r *Renderer, c *Call, args []string) (int, string) {
	path(c, args, 0)
	dirfd(args, 1, c.Args[1])
	path(c, args, 2)
	return 3, errnoResult(c)
}

func renderLinkat(r *Renderer, c *Call, args []string) (int, string) {
	dirfd(args, 0, c.OrigA0)
	path(c, args, 1)
	dirfd(args, 2, c.Args[2])
	path(c, args, 3)
	return 5, errnoResult(c)
}

func (r *Renderer) stat(st *abi.Stat) string {
	if r.Level >= LevelStable {
		return fmt.Sprintf("{dev, ino, mode=%#o, nlink=%d, rdev=%d, size=%d, blksize, blocks=%d}",
			st.Mode, st.Nlink, st.Rdev, st.Size, st.Blocks)
	}
	return fmt.Sprintf("{dev=%#x, ino=%d, mode=%#o, nlink=%d, rdev=%d, size=%d, blksize=%d, blocks=%d}",
		st.Dev, st.Ino, st.Mode, st.Nlink, st.Rdev, st.Size, st.Blksize, st.Blocks)
}

func renderFstatat(r *Renderer, c *Call, args []string) (int, string) {
	dirfd(args, 0, c.OrigA0)
	path(c, args, 1)
	var st abi.Stat
	if c.Ret == 0 && decode(c, 2, &st) {
		args[2] = r.stat(&st)
	}
	return 4, errnoResult(c)
}

func renderFstat(r *Renderer, c *Call, args []string) (int, string) {
	args[0] = fmt.Sprint(int64(c.OrigA0))
	var st abi.Stat
	if c.Ret == 0 && decode(c, 1, &st) {
		args[1] = r.stat(&st)
	}
	return 2, errnoResult(c)
}

func renderStatfs(r *Renderer, c *Call, args []string) (int, string) {
	path(c, args, 0)
	var fs abi.Statfs
	if c.Ret == 0 && decode(c, 1, &fs) {
		args[1] = fmt.Sprintf("{type=%#x, bsize=%d, blocks=%d, bfree=%d, files=%d, namelen=%d}",
			fs.Type, fs.Bsize, fs.Blocks, fs.Bfree, fs.Files, fs.Namelen)
	}
	return 2, errnoResult(c)
}

func renderReadlinkat(r *Renderer, c *Call, args []string) (int, string) {
	dirfd(args, 0, c.OrigA0)
	path(c, args, 1)
	path(c, args, 2)
	return 4, hexResult(c)
}

// renderIO shows the buffer of read and write when it was captured.
func renderIO(c *Call, args []string) (int, string) {
	args[0] = fmt.Sprint(int64(c.OrigA0))
	path(c, args, 1)
	return 3, hexResult(c)
}

func renderRead(r *Renderer, c *Call, args []string) (int, string) {
	return renderIO(c, args)
}

func renderWrite(r *Renderer, c *Call, args []string) (int, string) {
	return renderIO(c, args)
}

func renderExecve(r *Renderer, c *Call, args []string) (int, string) {
	path(c, args, 0)
	for _, idx := range []int{1, 2} {
		var items []string
		for _, p := range c.PayloadsAt(idx) {
			items = append(items, quote(p.Data))
		}
		args[idx] = "{" + strings.Join(items, ", ") + "}"
	}
	return 3, hexResult(c)
}

func renderUname(r *Renderer, c *Call, args []string) (int, string) {
	var uts abi.Utsname
	if c.Ret == 0 && decode(c, 0, &uts) {
		fields := uts.Fields()
		names := make([]string, len(fields))
		for i, f := range fields {
			names[i] = strconv.Quote(f)
			if i == 3 && r.Level >= LevelStable {
				names[i] = "%timestamp%"
			}
		}
		args[0] = "{" + strings.Join(names, ", ") + "}"
	}
	return 1, hexResult(c)
}

func renderBrk(r *Renderer, c *Call, args []string) (int, string) {
	return 1, fmt.Sprintf("%#x", c.Ret)
}

func renderMmap(r *Renderer, c *Call, args []string) (int, string) {
	if c.OrigA0 == 0 {
		args[0] = "NULL"
	}
	args[2] = ProtName(c.Args[2])
	args[3] = MapName(c.Args[3])
	if c.Args[4] == ^uint64(0) {
		args[4] = "-1"
	}
	if c.Ret < 0 {
		return 6, "MAP_FAILED"
	}
	return 6, fmt.Sprintf("%#x", c.Ret)
}

func renderMprotect(r *Renderer, c *Call, args []string) (int, string) {
	if c.OrigA0 == 0 {
		args[0] = "NULL"
	}
	args[2] = ProtName(c.Args[2])
	return 3, errnoResult(c)
}

func sigactionString(sa *abi.Sigaction) string {
	handler := fmt.Sprintf("%#x", sa.Handler)
	switch sa.Handler {
	case abi.SIG_DFL:
		handler = "SIG_DFL"
	case abi.SIG_IGN:
		handler = "SIG_IGN"
	}
	return fmt.Sprintf("{handler: %s, flags: %s, mask: %#x}", handler, SAFlagName(sa.Flags), sa.Mask)
}

func renderSigaction(r *Renderer, c *Call, args []string) (int, string) {
	args[0] = sysno.SignalName(c.OrigA0)
	for _, idx := range []int{1, 2} {
		var sa abi.Sigaction
		if decode(c, idx, &sa) {
			args[idx] = sigactionString(&sa)
		} else if c.Args[idx] == 0 {
			args[idx] = "NULL"
		}
	}
	return 3, errnoResult(c)
}

func renderSigprocmask(r *Renderer, c *Call, args []string) (int, string) {
	args[0] = HowName(c.OrigA0)
	for i, label := range []string{"nset", "oset"} {
		idx := i + 1
		switch p, ok := c.First(idx); {
		case c.Args[idx] == 0:
			args[idx] = label + ": NULL"
		case ok && len(p.Data) >= 8:
			args[idx] = fmt.Sprintf("%s: %#x", label, abi.Order.Uint64(p.Data))
		}
	}
	return 4, errnoResult(c)
}

func rlimitValue(v uint64) string {
	if v == abi.RLIM_INFINITY {
		return "RLIM_INFINITY"
	}
	return fmt.Sprint(v)
}

func renderPrlimit(r *Renderer, c *Call, args []string) (int, string) {
	if c.OrigA0 == 0 {
		args[0] = "0"
	}
	args[1] = ResourceName(c.Args[1])
	for _, idx := range []int{2, 3} {
		var lim abi.Rlimit
		if decode(c, idx, &lim) {
			args[idx] = fmt.Sprintf("{cur=%s, max=%s}", rlimitValue(lim.Cur), rlimitValue(lim.Max))
		} else if c.Args[idx] == 0 {
			args[idx] = "NULL"
		}
	}
	return 4, errnoResult(c)
}

func renderClockGettime(r *Renderer, c *Call, args []string) (int, string) {
	var ts abi.Timespec
	if c.Ret == 0 && decode(c, 1, &ts) {
		if r.Level >= LevelStable {
			args[1] = "{%timestamp%}"
		} else {
			args[1] = fmt.Sprintf("{sec=%d, nsec=%d}", ts.Sec, ts.Nsec)
		}
	}
	return 2, errnoResult(c)
}

func renderPipe2(r *Renderer, c *Call, args []string) (int, string) {
	var fds abi.FdPair
	if c.Ret == 0 && decode(c, 0, &fds) {
		args[0] = fmt.Sprintf("[%d, %d]", fds.Read, fds.Write)
	}
	return 2, errnoResult(c)
}

func renderWait4(r *Renderer, c *Call, args []string) (int, string) {
	if p, ok := c.First(1); ok && len(p.Data) >= 4 {
		args[1] = fmt.Sprintf("[%#x]", abi.Order.Uint32(p.Data))
	}
	if r.Level >= LevelStable {
		args[0] = r.maskTID(int64(c.OrigA0))
		if c.Ret > 0 {
			return 4, r.maskTID(c.Ret)
		}
	}
	return 4, errnoResult(c)
}

func renderKill(r *Renderer, c *Call, args []string) (int, string) {
	if r.Level >= LevelStable {
		args[0] = r.maskTID(int64(c.OrigA0))
	}
	args[1] = sysno.SignalName(c.Args[1])
	return 2, errnoResult(c)
}

func renderClone(r *Renderer, c *Call, args []string) (int, string) {
	if c.Ret > 0 {
		return 5, r.maskTID(c.Ret)
	}
	return 5, errnoResult(c)
}

// WriteSession prints every flow followed by the task sequence.
func (r *Renderer) WriteSession(w io.Writer, s *Session) error {
	for _, flow := range s.Flows {
		if _, err := fmt.Fprintln(w, r.FlowTitle(flow)); err != nil {
			return err
		}
		lines, err := r.FlowLines(flow)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, "Task sequence:"); err != nil {
		return err
	}
	for _, tid := range s.Tasks {
		if _, err := fmt.Fprintln(w, r.maskTID(int64(tid))); err != nil {
			return err
		}
	}
	return nil
}

// FlowTitle is the header line of a flow.
func (r *Renderer) FlowTitle(flow *Flow) string {
	return fmt.Sprintf("Task[%s] ========>", r.maskTID(int64(flow.TID)))
}

// FlowLines renders the calls of flow that pass the filter. Each line
// keeps the call's position in the flow.
func (r *Renderer) FlowLines(flow *Flow) ([]string, error) {
	lines := make([]string, 0, len(flow.Calls))
	for i, c := range flow.Calls {
		if r.Filter != nil && c.Signal == NoSignal {
			ok, err := r.Filter.Match(c, r.Table.NameOr(c.Sysno))
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		lines = append(lines, fmt.Sprintf("[%d]: %s", i, r.Render(c)))
	}
	return lines, nil
}

// recordLine is the LevelRaw form of a record.
func recordLine(tbl *sysno.Table, rec *trace.Record) string {
	return fmt.Sprintf("tid: %#x -> (%d)[%#x, %#x, %d %s]; satp: %#x; payloads: %d",
		rec.TID, rec.Phase, rec.Cause, rec.PC, rec.Sysno, tbl.NameOr(rec.Sysno), rec.Satp, len(rec.Payloads))
}
