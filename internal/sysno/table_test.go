package sysno

import "testing"

func TestForArch(t *testing.T) {
	for _, name := range []string{"", "riscv64", "rv64", "arm64", "aarch64"} {
		tbl, err := ForArch(name)
		if err != nil {
			t.Fatalf("ForArch(%q): %v", name, err)
		}
		if got := tbl.Name(OPENAT); got != "openat" {
			t.Errorf("ForArch(%q).Name(OPENAT) = %q", name, got)
		}
	}

	if _, err := ForArch("sparc"); err == nil {
		t.Error("expected error for unsupported arch")
	}
}

func TestNamesMatchGenericABI(t *testing.T) {
	tbl := RISCV64()
	tests := []struct {
		nr   uint64
		name string
	}{
		{17, "getcwd"},
		{48, "faccessat"},
		{56, "openat"},
		{63, "read"},
		{64, "write"},
		{79, "fstatat"},
		{134, "rt_sigaction"},
		{160, "uname"},
		{221, "execve"},
		{261, "prlimit64"},
		{278, "getrandom"},
	}
	for _, tt := range tests {
		if got := tbl.Name(tt.nr); got != tt.name {
			t.Errorf("Name(%d) = %q, want %q", tt.nr, got, tt.name)
		}
	}
}

func TestLookup(t *testing.T) {
	tbl := RISCV64()

	nr, ok := tbl.Lookup("execve")
	if !ok || nr != EXECVE {
		t.Errorf("Lookup(execve) = %d, %v", nr, ok)
	}

	nr, ok = tbl.Lookup("newfstatat")
	if !ok || nr != FSTATAT {
		t.Errorf("Lookup(newfstatat) = %d, %v", nr, ok)
	}

	if _, ok := tbl.Lookup("definitely_not_a_syscall"); ok {
		t.Error("Lookup of bogus name should fail")
	}
}

func TestNameOr(t *testing.T) {
	tbl := RISCV64()
	if got := tbl.NameOr(100000); got != "sys_100000" {
		t.Errorf("NameOr(100000) = %q", got)
	}
	if got := tbl.NameOr(UNAME); got != "uname" {
		t.Errorf("NameOr(UNAME) = %q", got)
	}
}

func TestNumbersSorted(t *testing.T) {
	nums := RISCV64().Numbers()
	if len(nums) == 0 {
		t.Fatal("empty table")
	}
	for i := 1; i < len(nums); i++ {
		if nums[i-1] >= nums[i] {
			t.Fatalf("not sorted at %d: %d >= %d", i, nums[i-1], nums[i])
		}
	}
}

func TestErrnoName(t *testing.T) {
	tests := []struct {
		ret  int64
		want string
	}{
		{0, "OK"},
		{-2, "ENOENT"},
		{-38, "ENOSYS"},
		{-9999, "errno(9999)"},
	}
	for _, tt := range tests {
		if got := ErrnoName(tt.ret); got != tt.want {
			t.Errorf("ErrnoName(%d) = %q, want %q", tt.ret, got, tt.want)
		}
	}
	if int64(Errno(ENOENT)) != -2 {
		t.Errorf("Errno(ENOENT) = %d", int64(Errno(ENOENT)))
	}
}

func TestSignalName(t *testing.T) {
	tests := map[uint64]string{
		SIGSEGV: "SIGSEGV",
		SIGSYS:  "SIGSYS",
		34:      "SIGRTMIN",
		35:      "SIGRTMIN+1",
		49:      "SIGRTMIN+15",
		50:      "SIGRTMAX-14",
		64:      "SIGRTMAX",
		0:       "SIGUNKNOWN",
		32:      "SIGUNKNOWN",
	}
	for sig, want := range tests {
		if got := SignalName(sig); got != want {
			t.Errorf("SignalName(%d) = %q, want %q", sig, got, want)
		}
	}
}
