package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"myhelper/internal/catalog"
	"myhelper/internal/failure"
)

const waitDelay = 2 * time.Second

func (g *Gateway) runCommand(ctx context.Context, tool catalog.Tool, params map[string]any) (map[string]any, error) {
	if err := g.checkPrivilege(tool); err != nil {
		return nil, err
	}
	spec := tool.Command
	data := templateData(tool, params)

	argv := make([]string, 0, len(spec.Argv))
	for i, raw := range spec.Argv {
		arg, err := render(fmt.Sprintf("%s.argv[%d]", tool.ID, i), raw, data)
		if err != nil {
			return nil, failure.Wrap(failure.KindValidation, err, "tool %s: render argument %d", tool.ID, i)
		}
		argv = append(argv, arg)
	}

	dir, err := g.commandDir(spec.Dir)
	if err != nil {
		return nil, failure.Wrap(failure.KindValidation, err, "tool %s", tool.ID)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = commandEnv(spec.Env)
	cmd.WaitDelay = waitDelay
	if err := setCredential(cmd, g.runAs); err != nil {
		return nil, failure.Wrap(failure.KindValidation, err, "tool %s", tool.ID)
	}

	stdout := &limitedBuffer{max: g.maxOutput}
	stderr := &limitedBuffer{max: g.maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()
	out := map[string]any{
		"stdout":    strings.TrimRight(stdout.String(), "\n"),
		"stderr":    strings.TrimRight(stderr.String(), "\n"),
		"exit_code": exitCode(runErr),
	}
	if stdout.truncated || stderr.truncated {
		out["truncated"] = true
	}
	if runErr == nil {
		return out, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return out, failure.Wrap(failure.KindExecution, runErr, "tool %s exited with code %d", tool.ID, exitErr.ExitCode())
	}
	return out, failure.Wrap(failure.KindExecution, runErr, "tool %s could not start %q", tool.ID, argv[0])
}

// checkPrivilege refuses to start a command as root unless an unprivileged
// identity is configured or root was explicitly allowed.
func (g *Gateway) checkPrivilege(tool catalog.Tool) error {
	if g.runAs != nil || g.allowPrivileged || g.euid() != 0 {
		return nil
	}
	return failure.New(failure.KindValidation,
		"tool %s: refusing to run a command as root; set commands.run_as or commands.allow_privileged", tool.ID)
}

// commandDir resolves a tool's working directory, which may not leave the
// sandbox.
func (g *Gateway) commandDir(rel string) (string, error) {
	if g.sandboxDir == "" {
		if rel != "" {
			return "", fmt.Errorf("working directory %q set but no sandbox configured", rel)
		}
		return "", nil
	}
	root, err := filepath.Abs(g.sandboxDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	if rel == "" {
		return root, nil
	}
	if filepath.IsAbs(rel) || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("working directory %q escapes the sandbox", rel)
	}
	return filepath.Join(root, rel), nil
}

// commandEnv keeps only PATH from the parent process.
func commandEnv(extra map[string]string) []string {
	env := []string{"PATH=" + os.Getenv("PATH")}
	for k, v := range extra {
		env = append(env, k+"="+os.ExpandEnv(v))
	}
	return env
}

// templateData exposes every declared parameter, absent optional ones as "".
func templateData(tool catalog.Tool, params map[string]any) map[string]any {
	data := make(map[string]any, len(tool.Params))
	for _, p := range tool.Params {
		data[p.Name] = ""
	}
	for k, v := range params {
		data[k] = v
	}
	return data
}

func render(name, text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// limitedBuffer keeps the first max bytes written and drops the rest.
type limitedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.max - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) String() string { return b.buf.String() }
