package executor

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	docker "github.com/cpuguy83/go-docker"
	"github.com/cpuguy83/go-docker/container"
	"github.com/cpuguy83/go-docker/image"
	"github.com/cpuguy83/dockercfg"
	"github.com/cenkalti/backoff/v4"
)

// Container runs build stages inside a short-lived, privileged
// container, the variant used when a build needs OS-level isolation
// from the host but a full disposable VM isn't required or available
// (CI runners, developer laptops without Qubes).
type Container struct {
	Client *docker.Client
	Image  string

	// Privileged mirrors mock/pbuilder's own chroot requirements
	// (loopback devices, bind mounts) that an unprivileged container
	// cannot set up.
	Privileged bool

	id string
}

// NewContainer pulls image (with retry) and returns a Container for
// it. The container itself is neither created nor started here: the
// first CopyIn or Run creates and starts it, privileged when
// privileged is true.
func NewContainer(ctx context.Context, client *docker.Client, img string, privileged bool) (*Container, error) {
	c := &Container{Client: client, Image: img, Privileged: privileged}
	if err := c.pullWithRetry(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) pullWithRetry(ctx context.Context) error {
	auth, _ := dockercfg.GetRegistryCredentials(registryHost(c.Image))
	op := func() error {
		svc := c.Client.ImageService()
		return svc.Pull(ctx, c.Image, image.WithPullAuth(auth.Username, auth.Password))
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(op, bo)
}

func registryHost(ref string) string {
	if idx := strings.Index(ref, "/"); idx > 0 && strings.ContainsAny(ref[:idx], ".:") {
		return ref[:idx]
	}
	return "docker.io"
}

func (c *Container) ensureCreated(ctx context.Context) error {
	if c.id != "" {
		return nil
	}
	svc := c.Client.ContainerService()
	spec := &container.Spec{
		Image:      c.Image,
		Cmd:        []string{"sleep", "infinity"},
		Privileged: c.Privileged,
	}
	ctr, err := svc.Create(ctx, "", spec)
	if err != nil {
		return &ExecutorError{Err: fmt.Errorf("create container: %w", err)}
	}
	if err := ctr.Start(ctx); err != nil {
		return &ExecutorError{SandboxName: ctr.ID(), Err: fmt.Errorf("start container: %w", err)}
	}
	c.id = ctr.ID()
	return nil
}

func (c *Container) CopyIn(ctx context.Context, files []FileCopy) error {
	if err := c.ensureCreated(ctx); err != nil {
		return err
	}
	for _, f := range files {
		tarball, err := tarFromPath(f.Src)
		if err != nil {
			return &ExecutorError{SandboxName: c.id, Err: err}
		}
		dest := ExpandPlaceholders(f.Dest)
		if err := c.Client.ContainerService().CopyTo(ctx, c.id, filepath.Dir(dest), bytes.NewReader(tarball)); err != nil {
			return &ExecutorError{SandboxName: c.id, Err: fmt.Errorf("copy_in %s -> %s: %w", f.Src, dest, err)}
		}
	}
	return nil
}

func (c *Container) CopyOut(ctx context.Context, files []FileCopy, noFailPatterns []string) error {
	if c.id == "" {
		return nil
	}
	for _, f := range files {
		src := ExpandPlaceholders(f.Src)
		rc, err := c.Client.ContainerService().CopyFrom(ctx, c.id, src)
		if err != nil {
			if matchesAny(noFailPatterns, f.Src) {
				continue
			}
			return &ExecutorError{SandboxName: c.id, Err: fmt.Errorf("copy_out %s: %w", src, err)}
		}
		if err := untarTo(rc, f.Dest); err != nil {
			rc.Close()
			return &ExecutorError{SandboxName: c.id, Err: err}
		}
		rc.Close()
	}
	return nil
}

func (c *Container) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	if err := c.ensureCreated(ctx); err != nil {
		return RunResult{}, err
	}
	if err := c.CopyIn(ctx, opts.CopyIn); err != nil {
		return RunResult{}, err
	}

	script := ExpandPlaceholders(strings.Join(opts.CmdLines, " && "))
	var env []string
	for k, v := range opts.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	exec, err := c.Client.ContainerService().Exec(ctx, c.id, container.ExecConfig{
		Cmd:          []string{"/bin/bash", "-c", script},
		Env:          env,
		WorkingDir:   Dir(PathBuild),
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return RunResult{}, &ExecutorError{SandboxName: c.id, Err: fmt.Errorf("exec create: %w", err)}
	}

	stdout := &LineSanitizer{Sink: writerOrDiscard(opts.Stdout)}
	stderr := &LineSanitizer{Sink: writerOrDiscard(opts.Stderr)}
	if err := exec.Attach(ctx, stdout, stderr); err != nil {
		return RunResult{}, &ExecutorError{SandboxName: c.id, Err: fmt.Errorf("exec attach: %w", err)}
	}
	stdout.Flush()
	stderr.Flush()

	code, err := exec.ExitCode(ctx)
	if err != nil {
		return RunResult{}, &ExecutorError{SandboxName: c.id, Err: err}
	}

	// CopyOut only runs on a zero exit code: a failed command raises
	// without attempting to collect outputs from a build that never
	// finished.
	if code != 0 {
		return RunResult{ExitCode: code}, &ExecutorError{SandboxName: c.id, Err: fmt.Errorf("command exited %d", code)}
	}
	if copyErr := c.CopyOut(ctx, opts.CopyOut, opts.NoFailCopyOutAllowedPatterns); copyErr != nil {
		return RunResult{ExitCode: code}, copyErr
	}
	return RunResult{ExitCode: code}, nil
}

func (c *Container) Close(ctx context.Context) error {
	if c.id == "" {
		return nil
	}
	killCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := c.Client.ContainerService().Remove(killCtx, c.id, container.WithRemoveForce(true))
	c.id = ""
	if err != nil {
		return &ExecutorError{Err: fmt.Errorf("remove container: %w", err)}
	}
	return nil
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

func tarFromPath(src string) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	info, err := os.Stat(src)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if err := addTarFile(tw, src, info.Name(), info); err != nil {
			return nil, err
		}
		return buf.Bytes(), tw.Close()
	}
	err = filepath.Walk(src, func(path string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(src, path)
		return addTarFile(tw, path, rel, fi)
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), tw.Close()
}

func addTarFile(tw *tar.Writer, path, name string, info os.FileInfo) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

func untarTo(r io.Reader, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := dest
		if hdr.Typeflag == tar.TypeDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		out.Close()
	}
}
