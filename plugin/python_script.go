// ABOUTME: Stock plugins: Python-script support and the CPU stats sampler.
// ABOUTME: Enablement is decided per operation from its command template and runtime.
package plugin

import (
	"strings"

	"github.com/cjbayron/guildai/guildfile"
)

// PythonScript enables runtime support for operations that execute a Python
// script or module.
type PythonScript struct{}

func (*PythonScript) Name() string { return "python-script" }

// EnabledForOp reports true when the operation runs under a Python
// interpreter or its command targets a .py script.
func (*PythonScript) EnabledForOp(opdef *guildfile.OpDef) (bool, string) {
	rt := opdef.Runtime.WithDefaults()
	if strings.HasPrefix(rt.Interpreter, "python") {
		return true, "operation runs under a Python interpreter"
	}
	if first := firstCmdToken(opdef.Cmd); strings.HasSuffix(first, ".py") {
		return true, "operation command is a Python script"
	}
	return false, "operation does not run Python"
}

func firstCmdToken(cmd guildfile.CmdSpec) string {
	switch cmd.Kind() {
	case guildfile.CmdTokens:
		if tokens := cmd.Tokens(); len(tokens) > 0 {
			return tokens[0]
		}
	case guildfile.CmdShell:
		fields := strings.Fields(cmd.Shell())
		if len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

// CPUSampler records CPU utilization for any operation. Always applicable;
// models opt out via disabled-plugins.
type CPUSampler struct{}

func (*CPUSampler) Name() string { return "cpu" }

func (*CPUSampler) EnabledForOp(*guildfile.OpDef) (bool, string) {
	return true, ""
}
