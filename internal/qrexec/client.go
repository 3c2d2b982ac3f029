package qrexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
)

// successPrefix is the byte sequence an admin.vm.* RPC call prefixes
// its reply with on success, per the qrexec admin API convention.
var successPrefix = []byte("0\x00")

// Client issues qrexec calls through the qrexec-client-vm /
// qvm-run helper binaries, matching how the original qubes-builder
// implementation drives dom0 admin services from inside (or next to)
// a managed VM. There is no persistent connection: each call spawns
// one subprocess and reads its stdout to completion.
type Client struct {
	// QrexecClientVM is the path to the qrexec-client-vm binary
	// (or, in a dom0 context, qvm-run); overridable for tests.
	QrexecClientVM string
}

func NewClient() *Client {
	return &Client{QrexecClientVM: "qrexec-client-vm"}
}

func (c *Client) call(ctx context.Context, target, service string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.QrexecClientVM, target, service)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("qrexec call %s %s: %w: %s", target, service, err, stderr.String())
	}
	return out.Bytes(), nil
}

// AdminVMState is the result of admin.vm.CurrentState.
type AdminVMState struct {
	PowerState string
}

// CreateDisposable creates a new disposable VM based on template,
// returning its qube name.
func (c *Client) CreateDisposable(ctx context.Context, template string) (string, error) {
	out, err := c.call(ctx, "dom0", "admin.vm.CreateDisposable", []byte(template))
	if err != nil {
		return "", err
	}
	return parseSuccessReply(out, "CreateDisposable")
}

// Start powers on an existing VM.
func (c *Client) Start(ctx context.Context, name string) error {
	_, err := c.adminCall(ctx, name, "admin.vm.Start")
	return err
}

// Kill forcibly powers off a VM. Safe to call on an already-stopped
// or already-removed VM; errors are returned but callers performing
// best-effort teardown should treat "already gone" as success.
func (c *Client) Kill(ctx context.Context, name string) error {
	_, err := c.adminCall(ctx, name, "admin.vm.Kill")
	return err
}

// Remove deletes a disposable VM's qube definition and storage.
func (c *Client) Remove(ctx context.Context, name string) error {
	_, err := c.adminCall(ctx, name, "admin.vm.Remove")
	return err
}

// CurrentState reports the VM's power state.
func (c *Client) CurrentState(ctx context.Context, name string) (AdminVMState, error) {
	out, err := c.adminCall(ctx, name, "admin.vm.CurrentState")
	if err != nil {
		return AdminVMState{}, err
	}
	return AdminVMState{PowerState: string(out)}, nil
}

func (c *Client) adminCall(ctx context.Context, name, service string) ([]byte, error) {
	out, err := c.call(ctx, "dom0", service+"+"+name, nil)
	if err != nil {
		return nil, err
	}
	return parseSuccessReplyBytes(out, service)
}

// FileCopyIn streams local content into target at destPath inside the
// VM via the qubesbuilder.FileCopyIn+<encoded-dest> service.
func (c *Client) FileCopyIn(ctx context.Context, target, destPath string, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	service := "qubesbuilder.FileCopyIn+" + EncodeForVMExec(destPath)
	_, err = c.call(ctx, target, service, data)
	return err
}

// FileCopyOut reads srcPath from inside the VM via the
// qubesbuilder.FileCopyOut+<encoded-src> service.
func (c *Client) FileCopyOut(ctx context.Context, target, srcPath string) ([]byte, error) {
	service := "qubesbuilder.FileCopyOut+" + EncodeForVMExec(srcPath)
	return c.call(ctx, target, service, nil)
}

// VMShell runs script inside target via qubesbuilder.VMShell,
// streaming combined output to stdout/stderr as it's produced.
func (c *Client) VMShell(ctx context.Context, target, script string, stdout, stderr io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, c.QrexecClientVM, target, "qubesbuilder.VMShell")
	cmd.Stdin = bytes.NewReader([]byte(script))
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func parseSuccessReply(out []byte, op string) (string, error) {
	b, err := parseSuccessReplyBytes(out, op)
	return string(b), err
}

func parseSuccessReplyBytes(out []byte, op string) ([]byte, error) {
	if !bytes.HasPrefix(out, successPrefix) {
		return nil, fmt.Errorf("qrexec %s failed: %s", op, out)
	}
	return bytes.TrimSuffix(out[len(successPrefix):], []byte("\n")), nil
}
