// Package command runs shell commands on devices (CMD-V1).
package command

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/management/apps"
	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
)

// Descriptor identifies CMD-V1.
var Descriptor = apps.Descriptor{
	Name:     "CMD",
	Version:  "V1",
	Request:  "command/exec-request",
	Response: "command/exec-response",
}

// Metric names of CMD-V1.
const (
	MetricCommand          = "command.command"
	MetricArguments        = "command.arguments"
	MetricEnvironment      = "command.environment"
	MetricWorkingDirectory = "command.working.directory"
	MetricTimeout          = "command.timeout"
	MetricRunAsync         = "command.run.async"
	MetricPassword         = "command.password"

	MetricStdout   = "command.stdout"
	MetricStderr   = "command.stderr"
	MetricExitCode = "command.exit.code"
	MetricTimedOut = "command.timedout"
)

const resourceCommand = "command"

// ErrEmptyCommand is returned by Exec when Input.Command is empty.
var ErrEmptyCommand = errors.New("command: empty command")

// Input is one command execution.
type Input struct {
	Command          string
	Arguments        []string
	Environment      []string
	WorkingDirectory string

	// Timeout is enforced by the device. Zero leaves it to the device.
	Timeout time.Duration

	RunAsync bool
	Password string

	// Stdin is written to the process before its input is closed.
	Stdin []byte
}

// Output is the result reported by the device.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Service executes commands through a Caller.
type Service struct {
	caller apps.Caller
}

// New creates a command Service.
func New(caller apps.Caller) *Service {
	return &Service{caller: caller}
}

// Exec runs in on the target device and waits up to timeout for the result.
// A zero timeout uses the caller's default.
func (s *Service) Exec(ctx context.Context, target apps.Target, in Input, timeout time.Duration) (*Output, error) {
	if strings.TrimSpace(in.Command) == "" {
		return nil, ErrEmptyCommand
	}

	req := Descriptor.NewRequest(target, message.MethodExecute, resourceCommand)
	m := req.Payload.Metrics
	m[MetricCommand] = in.Command
	if len(in.Arguments) > 0 {
		m[MetricArguments] = strings.Join(in.Arguments, " ")
	}
	if len(in.Environment) > 0 {
		m[MetricEnvironment] = strings.Join(in.Environment, " ")
	}
	if in.WorkingDirectory != "" {
		m[MetricWorkingDirectory] = in.WorkingDirectory
	}
	if in.Timeout > 0 {
		m[MetricTimeout] = in.Timeout.Milliseconds()
	}
	if in.RunAsync {
		m[MetricRunAsync] = true
	}
	if in.Password != "" {
		m[MetricPassword] = in.Password
	}
	req.Payload.Body = in.Stdin

	resp, err := Descriptor.Do(ctx, s.caller, req, timeout)
	if err != nil {
		return nil, err
	}
	return outputFrom(resp.Payload.Metrics), nil
}

func outputFrom(m message.Metrics) *Output {
	out := &Output{}
	out.Stdout, _ = m.Text(MetricStdout)
	out.Stderr, _ = m.Text(MetricStderr)
	if code, ok := m.Int(MetricExitCode); ok {
		out.ExitCode = int(code)
	} else if text, ok := m.Text(MetricExitCode); ok {
		out.ExitCode, _ = parseExitCode(text)
	}
	out.TimedOut, _ = m.Bool(MetricTimedOut)
	return out
}

// parseExitCode accepts the "exit status 2" form some agents report.
func parseExitCode(s string) (int, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "exit status ")
	n, err := strconv.Atoi(s)
	return n, err == nil
}
