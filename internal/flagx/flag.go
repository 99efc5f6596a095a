// Package flagx lets several parts of the relay read their own flags from
// one command line. The server config, the JSON config path and
// cmd/admintoken each see only the flags they define.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// FilterArgs keeps the arguments in args that belong to allowed flags,
// together with their values. Both "-name value" and "-name=value" forms are
// recognized. A token starting with "-" is never taken as a value.
func FilterArgs(args []string, allowed []string) []string {
	names := make(map[string]struct{}, len(allowed))
	for _, f := range allowed {
		names[f] = struct{}{}
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if _, keep := names[name]; keep {
				out = append(out, arg)
			}
			continue
		}

		if _, keep := names[arg]; !keep {
			continue
		}
		out = append(out, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			out = append(out, args[i+1])
			i++
		}
	}
	return out
}

// Parse parses into fs only the flags fs defines, in both their "-name" and
// "--name" spellings. Everything else in args is ignored.
func Parse(fs *flag.FlagSet, args []string) error {
	var allowed []string
	fs.VisitAll(func(f *flag.Flag) {
		allowed = append(allowed, "-"+f.Name, "--"+f.Name)
	})
	return fs.Parse(FilterArgs(args, allowed))
}

// JSONConfigPath returns the config file named by -c or -config in args, or
// "" when neither is given. The last occurrence wins.
func JSONConfigPath(args []string) string {
	var path string

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to JSON config file")
	fs.StringVar(&path, "c", "", "path to JSON config file (short)")
	_ = Parse(fs, args)

	return path
}
