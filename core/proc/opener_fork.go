package proc

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// workerEnvKey marks a process as a forked endpoint host. The parent
// re-executes its own binary with this set; the binary's main must branch
// into RunWorker when IsWorker reports true.
const workerEnvKey = "TROUPE_WORKER"

// ForkOpener places the child endpoint in a freshly forked copy of the
// current executable. The duplex channel is a pair of anonymous pipes passed
// as fds 3 and 4.
type ForkOpener struct {
	// Args are passed to the worker process verbatim. Optional.
	Args []string
}

// IsWorker reports whether this process was started as a forked endpoint.
func IsWorker() bool {
	return os.Getenv(workerEnvKey) != ""
}

// pipeDuplex glues a read end and a write end into one stream.
type pipeDuplex struct {
	r *os.File
	w *os.File

	// set on the parent side only
	cmd *exec.Cmd
}

func (d *pipeDuplex) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d *pipeDuplex) Write(p []byte) (int, error) { return d.w.Write(p) }

func (d *pipeDuplex) Close() error {
	err := d.w.Close()
	if e := d.r.Close(); err == nil {
		err = e
	}
	if d.cmd != nil && d.cmd.Process != nil {
		// closing our ends EOFs the worker; reap it
		_ = d.cmd.Wait()
	}
	return err
}

func (o ForkOpener) Open(ctx context.Context) (*Conn, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}

	toChildR, toChildW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	fromChildR, fromChildW, err := os.Pipe()
	if err != nil {
		_ = toChildR.Close()
		_ = toChildW.Close()
		return nil, err
	}

	// the worker outlives the creation call: it dies when our pipe ends
	// close or the actor is destroyed, never with ctx
	cmd := exec.Command(exe, o.Args...)
	cmd.Env = append(os.Environ(), workerEnvKey+"=1")
	// worker reads fd 3, writes fd 4
	cmd.ExtraFiles = []*os.File{toChildR, fromChildW}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		_ = toChildR.Close()
		_ = toChildW.Close()
		_ = fromChildR.Close()
		_ = fromChildW.Close()
		return nil, fmt.Errorf("fork worker: %w", err)
	}

	// the child inherited these, our copies must go
	_ = toChildR.Close()
	_ = fromChildW.Close()

	return NewConn(&pipeDuplex{r: fromChildR, w: toChildW, cmd: cmd}), nil
}

// RunWorker is the forked process's entry point: it serves one endpoint over
// the inherited pipes and returns when the parent disconnects or destroys
// the hosted actor.
func RunWorker(ctx context.Context, env Env) error {
	if !IsWorker() {
		return fmt.Errorf("not a worker process, %s is unset", workerEnvKey)
	}
	var duplex io.ReadWriteCloser = &pipeDuplex{
		r: os.NewFile(3, "from-parent"),
		w: os.NewFile(4, "to-parent"),
	}
	return Serve(ctx, NewConn(duplex), env)
}
