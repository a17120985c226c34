package buildopts

import (
	"os"
	"strconv"
	"strings"
)

// EnvBuildOptions is the environment variable carrying build-option flags.
const EnvBuildOptions = "DEB_BUILD_OPTIONS"

// Options captures the build-option flags that influence a package build run.
type Options struct {
	// NoCheck disables the test step entirely.
	NoCheck bool
	// NoDoc disables documentation generation and installation.
	NoDoc bool
	// NoOpt requests an unoptimized build.
	NoOpt bool
	// NoStrip keeps debugging symbols in installed binaries.
	NoStrip bool
	// Terse requests less verbose tool output.
	Terse bool
	// Parallel bounds concurrent per-interpreter invocations. Always >= 1.
	Parallel int
	// Unknown holds tokens that were present but not recognized.
	Unknown []string
}

// FromEnv parses the build options from the process environment.
func FromEnv() Options {
	return Parse(os.Getenv(EnvBuildOptions))
}

// Parse interprets a raw build-options value. Tokens are separated by spaces
// or commas. Parsing never fails: malformed tokens degrade to defaults and
// unrecognized tokens are retained in Unknown.
func Parse(value string) Options {
	options := Options{Parallel: 1}

	tokens := strings.FieldsFunc(value, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})

	for _, token := range tokens {
		switch {
		case token == "nocheck":
			options.NoCheck = true
		case token == "nodoc":
			options.NoDoc = true
		case token == "noopt":
			options.NoOpt = true
		case token == "nostrip":
			options.NoStrip = true
		case token == "terse":
			options.Terse = true
		case strings.HasPrefix(token, "parallel="):
			n, err := strconv.Atoi(strings.TrimPrefix(token, "parallel="))
			if err == nil && n >= 1 {
				options.Parallel = n
			}
		default:
			options.Unknown = append(options.Unknown, token)
		}
	}

	return options
}

// Tokens renders the recognized flags back into their token form, primarily
// for run records and logging.
func (o Options) Tokens() []string {
	var tokens []string
	if o.NoCheck {
		tokens = append(tokens, "nocheck")
	}
	if o.NoDoc {
		tokens = append(tokens, "nodoc")
	}
	if o.NoOpt {
		tokens = append(tokens, "noopt")
	}
	if o.NoStrip {
		tokens = append(tokens, "nostrip")
	}
	if o.Terse {
		tokens = append(tokens, "terse")
	}
	if o.Parallel > 1 {
		tokens = append(tokens, "parallel="+strconv.Itoa(o.Parallel))
	}
	tokens = append(tokens, o.Unknown...)
	return tokens
}

// String renders the options in the same format accepted by Parse.
func (o Options) String() string {
	return strings.Join(o.Tokens(), " ")
}
