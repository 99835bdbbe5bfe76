// Package flagx helps several configuration layers share os.Args without
// tripping over each other's flags.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// ConfigEnvVar names the environment variable consulted when no config flag is given.
const ConfigEnvVar = "IPS_CONFIG"

// FilterArgs keeps only the allowed flags from args, together with their values.
//
// Both "-c conf.json" and "--config=conf.json" forms are recognised. A token
// starting with "-" is never taken as a value.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// JsonConfigFlags returns the path given with -c or -config, or "" when absent.
func JsonConfigFlags() string {
	var config string

	args := FilterArgs(os.Args[1:], []string{"-c", "-config"})

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(args)

	return config
}

// ConfigPath resolves the JSON config file: flags first, then IPS_CONFIG.
func ConfigPath() string {
	if p := JsonConfigFlags(); p != "" {
		return p
	}
	return os.Getenv(ConfigEnvVar)
}
