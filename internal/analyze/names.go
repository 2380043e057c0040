package analyze

import (
	"fmt"
	"strings"

	"github.com/zboralski/lktrace/internal/abi"
)

type flagName struct {
	bit  uint64
	name string
}

func joinFlags(v uint64, names []flagName) []string {
	var out []string
	for _, f := range names {
		if v&f.bit != 0 {
			out = append(out, f.name)
		}
	}
	return out
}

var protNames = []flagName{
	{abi.PROT_READ, "PROT_READ"},
	{abi.PROT_WRITE, "PROT_WRITE"},
	{abi.PROT_EXEC, "PROT_EXEC"},
	{abi.PROT_SEM, "PROT_SEM"},
	{abi.PROT_GROWSDOWN, "PROT_GROWSDOWN"},
	{abi.PROT_GROWSUP, "PROT_GROWSUP"},
}

// ProtName renders mmap/mprotect protection bits.
func ProtName(prot uint64) string {
	if prot == abi.PROT_NONE {
		return "PROT_NONE"
	}
	return strings.Join(joinFlags(prot, protNames), "|")
}

var mapNames = []flagName{
	{abi.MAP_FIXED, "MAP_FIXED"},
	{abi.MAP_ANONYMOUS, "MAP_ANONYMOUS"},
	{abi.MAP_GROWSDOWN, "MAP_GROWSDOWN"},
	{abi.MAP_DENYWRITE, "MAP_DENYWRITE"},
	{abi.MAP_EXECUTABLE, "MAP_EXECUTABLE"},
	{abi.MAP_LOCKED, "MAP_LOCKED"},
	{abi.MAP_NORESERVE, "MAP_NORESERVE"},
	{abi.MAP_POPULATE, "MAP_POPULATE"},
	{abi.MAP_STACK, "MAP_STACK"},
}

// MapName renders mmap flags: the sharing type first, then the modifiers.
func MapName(flags uint64) string {
	var names []string
	switch flags & 3 {
	case abi.MAP_SHARED_VALIDATE:
		names = append(names, "MAP_SHARED_VALIDATE")
	case abi.MAP_SHARED:
		names = append(names, "MAP_SHARED")
	case abi.MAP_PRIVATE:
		names = append(names, "MAP_PRIVATE")
	default:
		names = append(names, "MAP_UNKNOWN")
	}
	return strings.Join(append(names, joinFlags(flags, mapNames)...), "|")
}

var saNames = []flagName{
	{abi.SA_NOCLDSTOP, "SA_NOCLDSTOP"},
	{abi.SA_SIGINFO, "SA_SIGINFO"},
	{abi.SA_RESTORER, "SA_RESTORER"},
	{abi.SA_ONSTACK, "SA_ONSTACK"},
	{abi.SA_RESTART, "SA_RESTART"},
	{abi.SA_NODEFER, "SA_NODEFER"},
	{abi.SA_RESETHAND, "SA_RESETHAND"},
}

// SAFlagName renders sigaction flags.
func SAFlagName(flags uint64) string {
	names := joinFlags(flags, saNames)
	if len(names) == 0 {
		return fmt.Sprintf("%#x", flags)
	}
	return strings.Join(names, "|")
}

// HowName renders the rt_sigprocmask how argument.
func HowName(how uint64) string {
	switch how {
	case abi.SIG_BLOCK:
		return "SIG_BLOCK"
	case abi.SIG_UNBLOCK:
		return "SIG_UNBLOCK"
	case abi.SIG_SETMASK:
		return "SIG_SETMASK"
	}
	return fmt.Sprintf("%#x", how)
}

var resourceNames = map[uint64]string{
	abi.RLIMIT_CPU:    "RLIMIT_CPU",
	abi.RLIMIT_FSIZE:  "RLIMIT_FSIZE",
	abi.RLIMIT_DATA:   "RLIMIT_DATA",
	abi.RLIMIT_STACK:  "RLIMIT_STACK",
	abi.RLIMIT_CORE:   "RLIMIT_CORE",
	abi.RLIMIT_NOFILE: "RLIMIT_NOFILE",
	abi.RLIMIT_AS:     "RLIMIT_AS",
}

// ResourceName renders a prlimit64 resource.
func ResourceName(res uint64) string {
	if name, ok := resourceNames[res]; ok {
		return name
	}
	return fmt.Sprint(res)
}
