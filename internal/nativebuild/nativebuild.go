// Package nativebuild runs the external native extension build and asks
// the interpreter for the wheel tag of the result.
package nativebuild

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/frederic-klein/yapb/internal/dist"
	"github.com/frederic-klein/yapb/internal/errors"
	"github.com/frederic-klein/yapb/internal/logging"
	"github.com/frederic-klein/yapb/internal/project"
)

//go:embed driver.py
var driverScript string

//go:embed tag.py
var tagScript string

// DefaultInterpreter is used when no interpreter is configured.
const DefaultInterpreter = "python3"

// Request describes one native build.
type Request struct {
	Root       string // absolute project root, the working directory
	Name       string
	Script     string // build script relative to Root
	Extensions []project.Extension
	BuildTemp  string // intermediate directory relative to Root
}

// Tool builds extensions in place and reports the tag they target.
type Tool interface {
	Build(ctx context.Context, req Request) error
	Tag(ctx context.Context) (dist.Tag, error)
}

// Python drives a Python interpreter with setuptools.
type Python struct {
	Interpreter string
	Env         []string // extra environment, appended to the inherited one
}

// NewPython returns a tool running interpreter, or DefaultInterpreter when
// it is empty.
func NewPython(interpreter string) *Python {
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	return &Python{Interpreter: interpreter}
}

var execCommand = exec.CommandContext

func (p *Python) command(ctx context.Context, dir string, args ...string) *exec.Cmd {
	cmd := execCommand(ctx, p.Interpreter, args...)
	cmd.Dir = dir
	if len(p.Env) > 0 {
		cmd.Env = append(cmd.Environ(), p.Env...)
	}
	return cmd
}

type driverConfig struct {
	Root       string              `json:"root"`
	Name       string              `json:"name"`
	Script     string              `json:"script"`
	Extensions []project.Extension `json:"extensions"`
	BuildTemp  string              `json:"build_temp"`
}

// Build runs the build script and compiles the declared extensions next to
// their sources. A failure carries the tool output as its detail.
func (p *Python) Build(ctx context.Context, req Request) error {
	logger := logging.FromContext(ctx)

	cfg, err := json.Marshal(driverConfig{
		Root:       req.Root,
		Name:       req.Name,
		Script:     req.Script,
		Extensions: append([]project.Extension{}, req.Extensions...),
		BuildTemp:  req.BuildTemp,
	})
	if err != nil {
		return fmt.Errorf("encoding build config: %w", err)
	}

	var out bytes.Buffer
	cmd := p.command(ctx, req.Root, "-c", driverScript, string(cfg))
	cmd.Stdout = &out
	cmd.Stderr = &out

	logger.Debug("running native build", "interpreter", p.Interpreter, "script", req.Script, "extensions", len(req.Extensions))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return errors.Wrap(errors.ErrCodeBuildTool, err, "native build with %s failed", p.Interpreter).
			WithDetail(strings.TrimRight(out.String(), "\n"))
	}
	if out.Len() > 0 {
		logger.Debug("native build output", "output", strings.TrimRight(out.String(), "\n"))
	}
	return nil
}

// Tag asks the interpreter for its own compatibility tag.
func (p *Python) Tag(ctx context.Context) (dist.Tag, error) {
	var stdout, stderr bytes.Buffer
	cmd := p.command(ctx, "", "-c", tagScript)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return dist.Tag{}, errors.Wrap(errors.ErrCodeBuildTool, err, "querying tag of %s", p.Interpreter).
			WithDetail(strings.TrimRight(stderr.String(), "\n"))
	}

	var reply struct {
		Python   string `json:"python"`
		ABI      string `json:"abi"`
		Platform string `json:"platform"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &reply); err != nil {
		return dist.Tag{}, errors.Wrap(errors.ErrCodeBuildTool, err, "parsing tag output").
			WithDetail(stdout.String())
	}
	tag := dist.Tag{Python: reply.Python, ABI: reply.ABI, Platform: reply.Platform}
	if tag.Python == "" || tag.ABI == "" || tag.Platform == "" {
		return dist.Tag{}, errors.New(errors.ErrCodeBuildTool, "incomplete tag from %s: %s", p.Interpreter, tag)
	}
	return tag, nil
}
