package dispatch

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/avolpe/scanflow/internal/errors"
)

// ProcessHandle is the dispatcher's view of a launched worker. Wait blocks
// until the process exits and returns its exit error, if any.
type ProcessHandle interface {
	Wait() error
}

// WorkerLauncher starts one isolated scan worker for a target. The worker
// is expected to deposit exactly one artifact at artifactPath before
// exiting successfully. Workers are deliberately not bound to a context:
// once running, a job finishes or fails on its own, and cancellation only
// stops the admission of new jobs.
type WorkerLauncher interface {
	Launch(target, artifactPath string) (ProcessHandle, error)
}

type cmdHandle struct {
	cmd *exec.Cmd
}

func (h *cmdHandle) Wait() error {
	return h.cmd.Wait()
}

// Placeholders substituted into launcher argument templates.
const (
	placeholderTarget   = "{target}"
	placeholderArtifact = "{artifact}"
)

// DockerLauncher runs one scanner container per host, mounting the
// artifact directory so the container's output lands in the store.
type DockerLauncher struct {
	// Image is the scanner container image.
	Image string
	// Args are passed to the container entrypoint after the built-in
	// target and output flags. {target} is substituted.
	Args []string
}

// Launch implements WorkerLauncher.
func (l *DockerLauncher) Launch(target, artifactPath string) (ProcessHandle, error) {
	if l.Image == "" {
		return nil, errors.New(errors.CodeConfiguration, "docker launcher requires an image")
	}

	hostDir, fileName := filepath.Split(artifactPath)
	args := []string{
		"run", "--rm",
		"-v", fmt.Sprintf("%s:/output", filepath.Clean(hostDir)),
		l.Image,
		fmt.Sprintf("--ip-v4-target=%s", target),
		"--scan-results-local-output-format=JSON",
		fmt.Sprintf("--scan-results-local-output-filename=/output/%s", fileName),
	}
	for _, extra := range l.Args {
		args = append(args, strings.ReplaceAll(extra, placeholderTarget, target))
	}

	cmd := exec.Command("docker", args...)
	if err := cmd.Start(); err != nil {
		return nil, errors.ErrWorkerLaunch(target, err)
	}
	return &cmdHandle{cmd: cmd}, nil
}

// ExecLauncher invokes the scanner binary directly, for environments
// without a container runtime. {target} and {artifact} placeholders in the
// argument template are substituted per job.
type ExecLauncher struct {
	Command string
	Args    []string
}

// Launch implements WorkerLauncher.
func (l *ExecLauncher) Launch(target, artifactPath string) (ProcessHandle, error) {
	if l.Command == "" {
		return nil, errors.New(errors.CodeConfiguration, "exec launcher requires a command")
	}

	args := make([]string, 0, len(l.Args))
	for _, arg := range l.Args {
		arg = strings.ReplaceAll(arg, placeholderTarget, target)
		arg = strings.ReplaceAll(arg, placeholderArtifact, artifactPath)
		args = append(args, arg)
	}

	cmd := exec.Command(l.Command, args...)
	if err := cmd.Start(); err != nil {
		return nil, errors.ErrWorkerLaunch(target, err)
	}
	return &cmdHandle{cmd: cmd}, nil
}
