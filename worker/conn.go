package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/segmentio/encoding/json"
)

// Conn is the pool side of one worker.
type Conn interface {
	// Send delivers a request. It must not block for long.
	Send(req Request) error

	// Responses delivers replies in arrival order.
	Responses() <-chan Response

	// Done is closed when the worker has exited or been killed.
	Done() <-chan struct{}

	// Err reports why the worker exited, after Done is closed.
	Err() error

	// Kill stops the worker. It is idempotent.
	Kill()
}

// Spawner starts a worker.
type Spawner func() (Conn, error)

// errKilled is the exit reason of a worker stopped by Kill.
var errKilled = errors.New("worker: killed")

// exit records the first exit reason and closes done.
type exit struct {
	once sync.Once
	done chan struct{}
	mu   sync.Mutex
	err  error
}

func (e *exit) close(err error) {
	e.once.Do(func() {
		e.mu.Lock()
		e.err = err
		e.mu.Unlock()
		close(e.done)
	})
}

func (e *exit) Done() <-chan struct{} { return e.done }

func (e *exit) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// =============================================================================
// In-process transport
// =============================================================================

type inProcess struct {
	exit
	h     Handler
	reqs  chan []byte
	resps chan Response
}

// InProcess returns a Spawner that runs h on a goroutine per worker.
//
// Requests and responses are copied through JSON. A panic in h crashes the
// worker the way an uncaught exception crashes a subprocess. A killed worker
// stuck in h cannot be stopped; its goroutine ends when h returns and the
// reply is dropped.
func InProcess(h Handler) Spawner {
	return func() (Conn, error) {
		c := &inProcess{
			exit:  exit{done: make(chan struct{})},
			h:     h,
			reqs:  make(chan []byte, 1),
			resps: make(chan Response, 1),
		}
		go c.run()
		return c, nil
	}
}

func (c *inProcess) Send(req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	select {
	case c.reqs <- data:
		return nil
	case <-c.done:
		return errKilled
	}
}

func (c *inProcess) Responses() <-chan Response { return c.resps }

func (c *inProcess) Kill() { c.close(errKilled) }

func (c *inProcess) run() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.reqs:
			var req Request
			if err := json.Unmarshal(data, &req); err != nil {
				c.close(fmt.Errorf("decode request: %w", err))
				return
			}
			resp, err := c.handle(req)
			if err != nil {
				c.close(err)
				return
			}
			out, err := json.Marshal(resp)
			if err != nil {
				c.close(fmt.Errorf("encode response: %w", err))
				return
			}
			var copied Response
			if err := json.Unmarshal(out, &copied); err != nil {
				c.close(fmt.Errorf("decode response: %w", err))
				return
			}
			select {
			case c.resps <- copied:
			case <-c.done:
				return
			}
		}
	}
}

func (c *inProcess) handle(req Request) (resp Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return Respond(c.h, req), nil
}

// =============================================================================
// Subprocess transport
// =============================================================================

type process struct {
	exit
	cmd   *exec.Cmd
	mu    sync.Mutex
	stdin io.WriteCloser
	enc   *json.Encoder
	resps chan Response
}

// Exec returns a Spawner that starts the program at path once per worker.
// The program must run Serve on its stdin and stdout.
func Exec(path string, args ...string) Spawner {
	return func() (Conn, error) {
		cmd := exec.Command(path, args...)
		cmd.Stderr = os.Stderr

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("worker: stdin: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("worker: stdout: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("worker: start %s: %w", path, err)
		}

		p := &process{
			exit:  exit{done: make(chan struct{})},
			cmd:   cmd,
			stdin: stdin,
			enc:   json.NewEncoder(stdin),
			resps: make(chan Response, 1),
		}
		go p.read(stdout)
		return p, nil
	}
}

func (p *process) Send(req Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(req)
}

func (p *process) Responses() <-chan Response { return p.resps }

func (p *process) Kill() {
	p.close(errKilled)
	_ = p.stdin.Close()
	_ = p.cmd.Process.Kill()
}

func (p *process) read(stdout io.Reader) {
	dec := json.NewDecoder(bufio.NewReader(stdout))
	for {
		var resp Response
		err := dec.Decode(&resp)
		if err == nil {
			select {
			case p.resps <- resp:
				continue
			case <-p.done:
				_ = p.cmd.Wait()
				return
			}
		}

		if errors.Is(err, io.EOF) {
			err = p.cmd.Wait()
			if err == nil {
				err = errors.New("worker: exited")
			}
		} else {
			err = fmt.Errorf("malformed response: %w", err)
			_ = p.cmd.Process.Kill()
			_ = p.cmd.Wait()
		}
		p.close(err)
		return
	}
}

// =============================================================================
// Worker side
// =============================================================================

// Serve reads JSON-line requests from r, runs h and writes JSON-line
// responses to w until r is exhausted or ctx is done. A malformed request
// is answered with an error response and ends the loop.
func Serve(ctx context.Context, r io.Reader, w io.Writer, h Handler) error {
	dec := json.NewDecoder(bufio.NewReader(r))
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var req Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			_ = enc.Encode(Response{Error: "malformed request: " + err.Error()})
			_ = bw.Flush()
			return fmt.Errorf("worker: decode request: %w", err)
		}

		if err := enc.Encode(Respond(h, req)); err != nil {
			return fmt.Errorf("worker: encode response: %w", err)
		}
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("worker: write response: %w", err)
		}
	}
}
