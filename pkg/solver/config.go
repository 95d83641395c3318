package solver

import (
	"fmt"

	"github.com/levenlabs/go-lflag"
)

// Configured sets up the solver based on flags.
func Configured() Solver {
	name := lflag.String("solver", "cbc", "Solver to use (available: cbc, glpk, simplex)")
	path := lflag.String("solver-path", "", "Path to the solver executable (defaults to cbc/glpsol in PATH)")
	verbose := lflag.Bool("solver-verbose", false, "Log the external solver output at info level")
	keepFiles := lflag.Bool("solver-keep-files", false, "Keep model and solution files of external solvers")
	workDir := lflag.String("solver-work-dir", "", "Directory for model and solution files")
	timeout := lflag.Duration("solver-timeout", 0, "Maximum duration of a single solve (0 means no limit)")

	var s struct{ Solver }

	lflag.Do(func() {
		switch *name {
		case "cbc", "glpk":
			s.Solver = &External{
				Kind:      Kind(*name),
				Path:      *path,
				Verbose:   *verbose,
				KeepFiles: *keepFiles,
				WorkDir:   *workDir,
				Timeout:   *timeout,
			}
		case "simplex":
			s.Solver = NewSimplex()
		default:
			panic(fmt.Sprintf("unknown solver: %s", *name))
		}
	})

	return &s
}
