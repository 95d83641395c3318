package solver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ugandapathways/pathways/pkg/log"
)

// Kind selects the command line and file formats of an external solver.
type Kind string

const (
	KindCBC  Kind = "cbc"
	KindGLPK Kind = "glpk"
)

// External runs a solver executable on a model file and reads back its
// solution file. The process is killed when the context is done.
type External struct {
	Kind Kind
	// Path of the executable. Defaults to "cbc" or "glpsol" looked up in PATH.
	Path string
	// Verbose logs the solver output at info level instead of debug.
	Verbose bool
	// KeepFiles leaves the model and solution files in WorkDir.
	KeepFiles bool
	// WorkDir for model files. A temporary directory is used when empty.
	WorkDir string
	// Timeout bounds a single solve when positive.
	Timeout time.Duration
}

func (e *External) Name() string { return string(e.Kind) }

func (e *External) executable() string {
	if e.Path != "" {
		return e.Path
	}
	if e.Kind == KindGLPK {
		return "glpsol"
	}
	return "cbc"
}

// Solve implements Solver.
func (e *External) Solve(ctx context.Context, p *Problem) (Solution, error) {
	if err := p.Validate(); err != nil {
		return Solution{Status: StatusError}, err
	}
	for _, r := range p.Rows {
		if len(r.Terms) == 0 && !emptyRowFeasible(r, 1e-9) {
			err := fmt.Errorf("%w: row %s cannot hold", ErrInfeasible, r.Name)
			return solutionForError(err), err
		}
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	dir := e.WorkDir
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "pathways-solver-")
		if err != nil {
			return Solution{Status: StatusError}, fmt.Errorf("failed to create work dir: %w", err)
		}
		if !e.KeepFiles {
			defer os.RemoveAll(dir)
		}
	}

	var modelPath, solPath string
	var args []string
	var write func(io.Writer, *Problem) error
	var parse func(io.Reader, int) (Status, []float64, error)
	switch e.Kind {
	case KindCBC:
		modelPath = filepath.Join(dir, "model.lp")
		solPath = filepath.Join(dir, "model.sol")
		args = []string{modelPath, "solve", "solu", solPath}
		write, parse = WriteLP, ParseCBCSolution
	case KindGLPK:
		modelPath = filepath.Join(dir, "model.mps")
		solPath = filepath.Join(dir, "model.sol")
		args = []string{"--freemps", modelPath, "-w", solPath}
		write, parse = WriteMPS, ParseGLPKSolution
	default:
		return Solution{Status: StatusError}, fmt.Errorf("unknown external solver kind %q", e.Kind)
	}

	if err := writeFile(modelPath, p, write); err != nil {
		return Solution{Status: StatusError}, err
	}

	l := log.Ctx(ctx)
	start := time.Now()
	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, e.executable(), args...)
	cmd.Stdout = &output
	cmd.Stderr = &output
	l.InfoContext(ctx, "starting external solver",
		slog.String("solver", e.executable()),
		slog.String("model", modelPath),
		slog.Int("columns", len(p.Columns)),
		slog.Int("rows", len(p.Rows)),
	)
	runErr := cmd.Run()
	e.logOutput(ctx, &output)
	if runErr != nil {
		if errors.Is(runErr, exec.ErrNotFound) {
			return Solution{Status: StatusError}, fmt.Errorf("%w: %s: %v", ErrSolverNotFound, e.executable(), runErr)
		}
		if ctx.Err() != nil {
			return Solution{Status: StatusError}, fmt.Errorf("solver interrupted: %w", ctx.Err())
		}
		return Solution{Status: StatusError}, fmt.Errorf("solver %s failed: %w", e.executable(), runErr)
	}
	l.InfoContext(ctx, "external solver finished", slog.Duration("elapsed", time.Since(start)))

	f, err := os.Open(solPath)
	if err != nil {
		return Solution{Status: StatusError}, fmt.Errorf("failed to open solution: %w", err)
	}
	defer f.Close()
	status, values, err := parse(f, len(p.Columns))
	if err != nil {
		return Solution{Status: StatusError}, fmt.Errorf("failed to parse solution: %w", err)
	}
	switch status {
	case StatusInfeasible:
		return Solution{Status: status}, ErrInfeasible
	case StatusUnbounded:
		return Solution{Status: status}, ErrUnbounded
	case StatusOptimal:
	default:
		return Solution{Status: status}, fmt.Errorf("solver returned status %s", status)
	}
	return Solution{Status: status, Objective: p.Objective(values), Values: values}, nil
}

func writeFile(path string, p *Problem, write func(io.Writer, *Problem) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	if err := write(f, p); err != nil {
		f.Close()
		return fmt.Errorf("failed to write model file: %w", err)
	}
	return f.Close()
}

func (e *External) logOutput(ctx context.Context, output *bytes.Buffer) {
	level := slog.LevelDebug
	if e.Verbose {
		level = slog.LevelInfo
	}
	l := log.Ctx(ctx)
	sc := bufio.NewScanner(output)
	for sc.Scan() {
		l.Log(ctx, level, "solver output", slog.String("line", sc.Text()))
	}
}
