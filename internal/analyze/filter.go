package analyze

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/zboralski/lktrace/internal/abi"
)

// Filter is a JavaScript boolean expression evaluated per call, for
// example `name == "openat" && ret < 0` or `strings.some(s => s.startsWith("/etc"))`.
//
// Bindings: sysno, name, ret, tid, pc, args (a0-a6 at entry), returned,
// and strings (every payload decoded as a C string).
type Filter struct {
	Source string

	vm   *goja.Runtime
	prog *goja.Program
}

// CompileFilter parses expr.
func CompileFilter(expr string) (*Filter, error) {
	prog, err := goja.Compile("filter", expr, true)
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}
	return &Filter{Source: expr, vm: goja.New(), prog: prog}, nil
}

// Match reports whether c passes the filter.
func (f *Filter) Match(c *Call, name string) (bool, error) {
	args := make([]interface{}, 7)
	for i := range args {
		args[i] = int64(c.Args[i])
	}
	args[0] = int64(c.OrigA0)

	strs := make([]interface{}, 0, len(c.Payloads))
	for _, p := range c.Payloads {
		strs = append(strs, abi.CString(p.Data))
	}

	bindings := map[string]interface{}{
		"sysno":    int64(c.Sysno),
		"name":     name,
		"ret":      c.Ret,
		"tid":      int64(c.TID),
		"pc":       int64(c.PC),
		"args":     args,
		"returned": c.Returned,
		"strings":  strs,
	}
	for k, v := range bindings {
		if err := f.vm.Set(k, v); err != nil {
			return false, fmt.Errorf("filter binding %s: %w", k, err)
		}
	}

	v, err := f.vm.RunProgram(f.prog)
	if err != nil {
		return false, fmt.Errorf("filter %q: %w", f.Source, err)
	}
	return v.ToBoolean(), nil
}
