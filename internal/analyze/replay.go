// Package analyze turns a recorded syscall trace back into something a
// person can read: raw record dumps, per-task call sequences with entry
// and exit merged, and summary statistics.
package analyze

import (
	"fmt"
	"sort"

	"github.com/zboralski/lktrace/internal/abi"
	glog "github.com/zboralski/lktrace/internal/log"
	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
	"go.uber.org/zap"
)

// SignalStage marks calls that stand for signal delivery rather than a
// syscall.
type SignalStage int

const (
	NoSignal    SignalStage = iota
	SignalEnter             // synthetic: the handler started running
	SignalExit              // the interrupted call, resumed after rt_sigreturn
)

// Call is one syscall with its exit merged into its entry. The embedded
// record keeps the entry registers; Ret and the exit payloads come from
// the matching exit record.
type Call struct {
	trace.Record

	Returned bool   // an exit record was merged
	ExitPC   uint64 // epc of the exit record
	Killed   bool   // the task moved on before this call returned

	Signal SignalStage
	Signo  uint64
}

// Flow is the call sequence of one task.
type Flow struct {
	TID    uint64
	Calls  []*Call
	Exited bool // ended with exit_group

	signals []*Call
}

func (f *Flow) last() *Call {
	if len(f.Calls) == 0 {
		return nil
	}
	return f.Calls[len(f.Calls)-1]
}

// Session is the result of a replay.
type Session struct {
	Flows    []*Flow  // finished flows first, then live ones by tid
	Tasks    []uint64 // tids in order of first appearance
	Warnings []string
}

// Replayer pairs entry and exit records per task. Records must be fed in
// file order.
type Replayer struct {
	Log *glog.Logger

	live     map[uint64]*Flow
	done     []*Flow
	tasks    []uint64
	clones   []*Call
	handlers map[uint64]bool
	warnings []string
}

// NewReplayer creates an empty replayer.
func NewReplayer() *Replayer {
	return &Replayer{
		Log:      glog.Get(),
		live:     make(map[uint64]*Flow),
		handlers: make(map[uint64]bool),
	}
}

// Replay pairs every record in recs.
func Replay(recs []*trace.Record) *Session {
	r := NewReplayer()
	for _, rec := range recs {
		r.Add(rec)
	}
	return r.Finish()
}

func (r *Replayer) warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.warnings = append(r.warnings, msg)
	if r.Log != nil {
		r.Log.Warn("replay", zap.String("detail", msg))
	}
}

func newCall(rec *trace.Record) *Call {
	c := &Call{}
	c.Event = rec.Event
	c.Payloads = append([]trace.Payload(nil), rec.Payloads...)
	return c
}

// Add feeds one record.
func (r *Replayer) Add(rec *trace.Record) {
	if rec.Cause != trace.CauseUserEcall {
		r.warnf("tid 0x%x: unexpected cause %d", rec.TID, rec.Cause)
	}

	tid := rec.TID
	flow, ok := r.live[tid]
	if !ok {
		flow = &Flow{TID: tid}
		r.live[tid] = flow
		r.tasks = append(r.tasks, tid)

		// A task's first record is an entry, or the child's side of clone.
		if rec.Phase == trace.PhaseOut {
			if rec.Sysno == sysno.CLONE && len(r.clones) > 0 {
				parent := r.clones[len(r.clones)-1]
				r.clones = r.clones[:len(r.clones)-1]
				child := newCall(&parent.Record)
				child.TID = tid
				flow.Calls = append(flow.Calls, child)
			} else {
				r.warnf("tid 0x%x: first record is the exit of %d", tid, rec.Sysno)
				flow.Calls = append(flow.Calls, newCall(rec))
			}
		}
	}

	switch rec.Phase {
	case trace.PhaseIn:
		r.enter(flow, rec)
	case trace.PhaseOut:
		r.exit(flow, rec)
	default:
		r.warnf("tid 0x%x: bad phase %d", tid, rec.Phase)
	}
}

func (r *Replayer) enter(flow *Flow, rec *trace.Record) {
	if last := flow.last(); last != nil && !last.Returned && last.Signal != SignalEnter {
		last.Killed = true
	}

	switch rec.Sysno {
	case sysno.CLONE:
		c := newCall(rec)
		r.clones = append(r.clones, c)
		flow.Calls = append(flow.Calls, c)
	case sysno.RT_SIGRETURN:
		if n := len(flow.signals); n > 0 {
			resumed := flow.signals[n-1]
			flow.signals = flow.signals[:n-1]
			flow.Calls = append(flow.Calls, resumed)
			return
		}
		flow.Calls = append(flow.Calls, newCall(rec))
	case sysno.EXIT_GROUP:
		flow.Calls = append(flow.Calls, newCall(rec))
		flow.Exited = true
		r.done = append(r.done, flow)
		delete(r.live, flow.TID)
	default:
		flow.Calls = append(flow.Calls, newCall(rec))
	}
}

func (r *Replayer) exit(flow *Flow, rec *trace.Record) {
	last := flow.last()
	if last == nil {
		r.warnf("tid 0x%x: exit of %d with no pending call", flow.TID, rec.Sysno)
		return
	}
	if last.Sysno != rec.Sysno {
		r.warnf("tid 0x%x: exit of %d does not match pending %d", flow.TID, rec.Sysno, last.Sysno)
	}

	if rec.Sysno == sysno.RT_SIGACTION {
		if sa, _, ok := parseSigaction(rec); ok && sa.Handler > abi.SIG_IGN {
			r.handlers[sa.Handler] = true
		}
	}

	// Returning straight into a registered handler means the kernel
	// delivered a signal on the way out of this call.
	if r.handlers[rec.PC] && rec.Sysno != sysno.EXECVE {
		flow.Calls = flow.Calls[:len(flow.Calls)-1]
		last.Signal = SignalExit
		last.Signo = uint64(rec.Ret)
		flow.signals = append(flow.signals, last)

		enter := &Call{Signal: SignalEnter, Signo: uint64(rec.Ret), Returned: true}
		enter.Phase = trace.PhaseOut
		enter.Cause = trace.CauseUserEcall
		enter.TID = flow.TID
		flow.Calls = append(flow.Calls, enter)
		return
	}

	last.Ret = rec.Ret
	last.Returned = true
	last.ExitPC = rec.PC
	last.Payloads = append(last.Payloads, rec.Payloads...)
}

// Finish closes the replay and returns the session.
func (r *Replayer) Finish() *Session {
	s := &Session{
		Flows:    append([]*Flow(nil), r.done...),
		Tasks:    append([]uint64(nil), r.tasks...),
		Warnings: append([]string(nil), r.warnings...),
	}
	tids := make([]uint64, 0, len(r.live))
	for tid := range r.live {
		tids = append(tids, tid)
	}
	sort.Slice(tids, func(i, j int) bool { return tids[i] < tids[j] })
	for _, tid := range tids {
		s.Flows = append(s.Flows, r.live[tid])
	}
	return s
}

// parseSigaction decodes the first payload of an rt_sigaction record.
func parseSigaction(rec *trace.Record) (abi.Sigaction, int, bool) {
	var sa abi.Sigaction
	if len(rec.Payloads) == 0 {
		return sa, 0, false
	}
	p := rec.Payloads[0]
	if len(p.Data) < abi.Sizeof(&sa) {
		return sa, 0, false
	}
	if err := abi.Unpack(p.Data, &sa); err != nil {
		return sa, 0, false
	}
	return sa, p.Index, true
}
