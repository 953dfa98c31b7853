// Package sandbox runs candidate code for coding questions inside an
// ephemeral, network-disabled Docker container, resolving spec.md §9's
// open question about the /code-eval sandboxing contract. Adapted wholesale
// from the teacher's sandbox service (internal/runtime/runtime.go): same
// dockerClient interface, same container lifecycle and resource limits,
// generalized from raw stdout capture to the function-call/test-case
// contract in spec.md §3's Question model (see codeeval.go).
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
)

// Language is the candidate's chosen implementation language. Only the
// three languages the teacher's sandbox supports are wired.
type Language string

const (
	LangPython Language = "python"
	LangJava   Language = "java"
	LangCPP    Language = "cpp"
)

// Limits bounds one run's wall-clock time, memory, and CPU share.
type Limits struct {
	WallTime time.Duration
	MemoryB  int64
	NanoCPUs int64
}

// ExitInfo is the process-level result of one run.
type ExitInfo struct {
	Code     int  `json:"code"`
	TimedOut bool `json:"timedOut"`
}

// RunResult is the raw stdout/stderr/exit outcome of executing one harness
// program inside the sandbox. codeeval.go turns this into per-test
// pass/actual/error results.
type RunResult struct {
	Stdout string
	Stderr string
	Exit   ExitInfo
	Error  string
}

type dockerClient interface {
	ImageInspectWithRaw(ctx context.Context, image string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, ref string, options types.ImagePullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.ContainerCreateCreatedBody, error)
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerKill(ctx context.Context, containerID string, signal string) error
	ContainerExecCreate(ctx context.Context, container string, config types.ExecConfig) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config types.ExecStartCheck) (types.HijackedResponse, error)
	ContainerExecStart(ctx context.Context, execID string, config types.ExecStartCheck) error
	ContainerExecInspect(ctx context.Context, execID string) (types.ContainerExecInspect, error)
}

// Sandbox owns one Docker client, a target image, and the resource limits
// every run inside it is bound by.
type Sandbox struct {
	cli    dockerClient
	image  string
	limits Limits
}

var newDockerClient = func() (dockerClient, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

var ErrDockerUnavailable = errors.New("docker daemon unreachable")

// NewSandbox builds a Docker client from the environment (no connection is
// made until a run) and applies default limits, the same defaults the
// teacher's sandbox ships.
func NewSandbox(image string, limits Limits) (*Sandbox, error) {
	cli, err := newDockerClient()
	if err != nil {
		return nil, translateDockerErr(err)
	}
	if limits.WallTime <= 0 {
		limits.WallTime = 10 * time.Second
	}
	if limits.MemoryB == 0 {
		limits.MemoryB = 512 * 1024 * 1024
	}
	if limits.NanoCPUs == 0 {
		limits.NanoCPUs = 1_000_000_000
	}
	return &Sandbox{cli: cli, image: image, limits: limits}, nil
}

// RunProgram executes one source file's run commands inside a fresh,
// network-disabled container and captures stdout/stderr.
func (s *Sandbox) RunProgram(ctx context.Context, fileName string, source []byte, cmds [][]string) RunResult {
	runCtx, cancel := context.WithTimeout(ctx, s.limits.WallTime)
	defer cancel()

	var stdoutBuf, stderrBuf strings.Builder
	exit, timedOut, runErr := s.run(runCtx, fileName, source, cmds,
		func(p []byte) { stdoutBuf.Write(p) },
		func(p []byte) { stderrBuf.Write(p) },
	)

	res := RunResult{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
		Exit:   ExitInfo{Code: exit, TimedOut: timedOut},
	}
	if runErr != nil {
		res.Error = mapSandboxError(runErr)
	}
	return res
}

func (s *Sandbox) run(ctx context.Context, fileName string, code []byte, cmds [][]string,
	onStdout func([]byte), onStderr func([]byte)) (exit int, timedOut bool, err error) {

	if err := s.ensureImage(ctx); err != nil {
		return -1, false, translateDockerErr(err)
	}

	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:   s.limits.MemoryB,
			NanoCPUs: s.limits.NanoCPUs,
		},
		SecurityOpt: []string{"no-new-privileges"},
	}

	conf := &container.Config{
		Image:      s.image,
		Cmd:        []string{"/bin/sh", "-c", "sleep infinity"},
		WorkingDir: "/workspace",
		Env:        []string{"PYTHONDONTWRITEBYTECODE=1"},
	}

	create, err := s.cli.ContainerCreate(ctx, conf, hostCfg, nil, nil, "")
	if err != nil {
		return -1, false, translateDockerErr(err)
	}
	cid := create.ID
	defer func() {
		_ = s.cli.ContainerRemove(context.Background(), cid, types.ContainerRemoveOptions{Force: true})
	}()

	if err := s.cli.ContainerStart(ctx, cid, types.ContainerStartOptions{}); err != nil {
		return -1, false, translateDockerErr(err)
	}
	if err := s.copyFile(ctx, cid, "/workspace/"+fileName, code, 0600); err != nil {
		_ = s.cli.ContainerKill(context.Background(), cid, "SIGKILL")
		return -1, false, translateDockerErr(err)
	}

	for i, cmd := range cmds {
		execID, attach, err := s.execStart(ctx, cid, cmd)
		if err != nil {
			_ = s.cli.ContainerKill(context.Background(), cid, "SIGKILL")
			if ctx.Err() != nil {
				return -1, true, nil
			}
			return -1, false, translateDockerErr(err)
		}

		_, _ = stdcopy.StdCopy(writerFunc(onStdout), writerFunc(onStderr), attach.Reader)
		attach.Close()

		ir, ierr := s.cli.ContainerExecInspect(ctx, execID)
		if ierr != nil {
			_ = s.cli.ContainerKill(context.Background(), cid, "SIGKILL")
			if ctx.Err() != nil {
				return -1, true, nil
			}
			return -1, false, translateDockerErr(ierr)
		}
		if ir.ExitCode != 0 {
			return ir.ExitCode, false, nil
		}
		if i == len(cmds)-1 {
			return 0, false, nil
		}
	}
	return 0, false, nil
}

func (s *Sandbox) ensureImage(ctx context.Context) error {
	_, _, err := s.cli.ImageInspectWithRaw(ctx, s.image)
	if err == nil {
		return nil
	}
	if client.IsErrNotFound(err) {
		pullCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		reader, pullErr := s.cli.ImagePull(pullCtx, s.image, types.ImagePullOptions{})
		if pullErr != nil {
			return translateDockerErr(pullErr)
		}
		defer reader.Close()
		_, _ = io.Copy(io.Discard, reader)
		return nil
	}
	return translateDockerErr(err)
}

func (s *Sandbox) execStart(ctx context.Context, containerID string, cmd []string) (execID string, attach types.HijackedResponse, err error) {
	execResp, err := s.cli.ContainerExecCreate(ctx, containerID, types.ExecConfig{
		Cmd: cmd, WorkingDir: "/workspace", AttachStdout: true, AttachStderr: true,
	})
	if err != nil {
		return "", types.HijackedResponse{}, translateDockerErr(err)
	}
	attach, err = s.cli.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{})
	if err != nil {
		return "", types.HijackedResponse{}, translateDockerErr(err)
	}
	if err := s.cli.ContainerExecStart(ctx, execResp.ID, types.ExecStartCheck{}); err != nil {
		attach.Close()
		return "", types.HijackedResponse{}, translateDockerErr(err)
	}
	return execResp.ID, attach, nil
}

func (s *Sandbox) copyFile(ctx context.Context, cid, absPath string, content []byte, mode int64) error {
	if absPath == "" || !strings.HasPrefix(absPath, "/") {
		return fmt.Errorf("invalid path %q", absPath)
	}
	dir := path.Dir(absPath)
	if err := s.runCommand(ctx, cid, fmt.Sprintf("mkdir -p %s", shellQuote(dir))); err != nil {
		return err
	}
	if err := s.execWithInput(ctx, cid, fmt.Sprintf("cat > %s", shellQuote(absPath)), content); err != nil {
		return err
	}
	return s.runCommand(ctx, cid, fmt.Sprintf("chmod %o %s", mode&0o777, shellQuote(absPath)))
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}

func (s *Sandbox) runCommand(ctx context.Context, cid, cmd string) error {
	execID, attach, err := s.execStart(ctx, cid, []string{"/bin/sh", "-c", cmd})
	if err != nil {
		return err
	}
	_, _ = stdcopy.StdCopy(io.Discard, io.Discard, attach.Reader)
	attach.Close()
	inspect, err := s.cli.ContainerExecInspect(ctx, execID)
	if err != nil {
		return translateDockerErr(err)
	}
	if inspect.ExitCode != 0 {
		return fmt.Errorf("command failed (%s) exit=%d", cmd, inspect.ExitCode)
	}
	return nil
}

func (s *Sandbox) execWithInput(ctx context.Context, cid, command string, payload []byte) error {
	execResp, err := s.cli.ContainerExecCreate(ctx, cid, types.ExecConfig{
		Cmd: []string{"/bin/sh", "-c", command}, WorkingDir: "/workspace",
		AttachStdout: true, AttachStderr: true, AttachStdin: true,
	})
	if err != nil {
		return err
	}
	attach, err := s.cli.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{})
	if err != nil {
		return err
	}
	defer attach.Close()
	if err := s.cli.ContainerExecStart(ctx, execResp.ID, types.ExecStartCheck{}); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := attach.Conn.Write(payload); err != nil {
			return err
		}
	}
	if closer, ok := attach.Conn.(interface{ CloseWrite() error }); ok {
		_ = closer.CloseWrite()
	}
	_, _ = stdcopy.StdCopy(io.Discard, io.Discard, attach.Reader)
	inspect, err := s.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return err
	}
	if inspect.ExitCode != 0 {
		return fmt.Errorf("write failed (%s) exit=%d", command, inspect.ExitCode)
	}
	return nil
}

type writerFunc func([]byte)

func (f writerFunc) Write(p []byte) (int, error) {
	f(p)
	return len(p), nil
}

func translateDockerErr(err error) error {
	if err == nil {
		return nil
	}
	if client.IsErrConnectionFailed(err) {
		return ErrDockerUnavailable
	}
	return err
}

func mapSandboxError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrDockerUnavailable) {
		return "sandbox_unavailable"
	}
	return "sandbox_error"
}
