package cli

import (
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/b2ctest/flowrunner/pkg/config"
)

// dispatchOnly are the prefixed arguments that only the dispatcher accepts.
// A legacy command line using any of them without a command is a dispatch.
var dispatchOnly = map[string]bool{
	"suite":      true,
	"exe":        true,
	"threads":    true,
	"iterations": true,
}

// NormalizeArgs rewrites legacy "prefix:value" arguments to "--flag=value"
// and places them right after the command, since flags are not parsed after
// the first positional argument. When no command is given, "dispatch" is
// assumed if a dispatcher-only prefix was used, "run" otherwise.
//
//	flowrunner suite.json container:tests singleTest:signup
//	=> flowrunner run --container=tests --single-test=signup suite.json
func NormalizeArgs(args []string, prefixes config.Prefixes, commands []string) []string {
	if len(args) == 0 {
		return args
	}

	var rewritten, rest []string
	dispatch := false
	for _, arg := range args[1:] {
		if !strings.HasPrefix(arg, "-") {
			if flag, value, ok := prefixes.Match(arg); ok {
				rewritten = append(rewritten, "--"+flag+"="+value)
				dispatch = dispatch || dispatchOnly[flag]
				continue
			}
		}
		rest = append(rest, arg)
	}

	// Leading flags belong to the app; the first positional is the command.
	valueFlags := globalValueFlags()
	cmdAt := len(rest)
	for i := 0; i < len(rest); i++ {
		if !strings.HasPrefix(rest[i], "-") {
			cmdAt = i
			break
		}
		if valueFlags[rest[i]] {
			i++
		}
	}

	out := append([]string{args[0]}, rest[:cmdAt]...)
	tail := rest[cmdAt:]
	if len(tail) > 0 && isCommand(tail[0], commands) {
		out = append(out, tail[0])
		tail = tail[1:]
	} else if len(tail) > 0 || len(rewritten) > 0 {
		if dispatch {
			out = append(out, "dispatch")
		} else {
			out = append(out, "run")
		}
	}
	out = append(out, rewritten...)
	return append(out, tail...)
}

// globalValueFlags returns the spellings of app flags that take their value
// as the next argument.
func globalValueFlags() map[string]bool {
	flags := make(map[string]bool)
	for _, f := range GlobalFlags {
		if _, ok := f.(*cli.StringFlag); !ok {
			continue
		}
		for _, name := range f.Names() {
			flags["-"+name] = true
			flags["--"+name] = true
		}
	}
	return flags
}

func isCommand(arg string, commands []string) bool {
	for _, c := range commands {
		if arg == c {
			return true
		}
	}
	return false
}
