package sysno

import "fmt"

// Signal numbers shared by the asm-generic architectures.
const (
	SIGHUP    = 1
	SIGINT    = 2
	SIGQUIT   = 3
	SIGILL    = 4
	SIGTRAP   = 5
	SIGABRT   = 6
	SIGBUS    = 7
	SIGFPE    = 8
	SIGKILL   = 9
	SIGUSR1   = 10
	SIGSEGV   = 11
	SIGUSR2   = 12
	SIGPIPE   = 13
	SIGALRM   = 14
	SIGTERM   = 15
	SIGSTKFLT = 16
	SIGCHLD   = 17
	SIGCONT   = 18
	SIGSTOP   = 19
	SIGTSTP   = 20
	SIGTTIN   = 21
	SIGTTOU   = 22
	SIGURG    = 23
	SIGXCPU   = 24
	SIGXFSZ   = 25
	SIGVTALRM = 26
	SIGPROF   = 27
	SIGWINCH  = 28
	SIGIO     = 29
	SIGPWR    = 30
	SIGSYS    = 31

	SIGRTMIN = 34
	SIGRTMAX = 64
)

var signalNames = [...]string{
	"", "SIGHUP", "SIGINT", "SIGQUIT", "SIGILL", "SIGTRAP", "SIGABRT",
	"SIGBUS", "SIGFPE", "SIGKILL", "SIGUSR1", "SIGSEGV", "SIGUSR2",
	"SIGPIPE", "SIGALRM", "SIGTERM", "SIGSTKFLT", "SIGCHLD", "SIGCONT",
	"SIGSTOP", "SIGTSTP", "SIGTTIN", "SIGTTOU", "SIGURG", "SIGXCPU",
	"SIGXFSZ", "SIGVTALRM", "SIGPROF", "SIGWINCH", "SIGIO", "SIGPWR",
	"SIGSYS",
}

// SignalName returns the symbolic name of signum. Real-time signals are
// written relative to SIGRTMIN in the lower half and SIGRTMAX in the
// upper half.
func SignalName(signum uint64) string {
	switch {
	case signum > 0 && signum < uint64(len(signalNames)):
		return signalNames[signum]
	case signum == SIGRTMIN:
		return "SIGRTMIN"
	case signum == SIGRTMAX:
		return "SIGRTMAX"
	case signum > SIGRTMIN && signum < SIGRTMIN+16:
		return fmt.Sprintf("SIGRTMIN+%d", signum-SIGRTMIN)
	case signum >= SIGRTMIN+16 && signum < SIGRTMAX:
		return fmt.Sprintf("SIGRTMAX-%d", SIGRTMAX-signum)
	}
	return "SIGUNKNOWN"
}
