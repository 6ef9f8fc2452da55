package utils

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"

	"go.viam.com/vio/logging"
)

// DefaultPollInterval is how often Wait checks for cancellation.
const DefaultPollInterval = 30 * time.Millisecond

// Pauser waits for the user to press enter between steps. Typing "q" asks the caller to stop.
// Wait never touches the caller's state.
//
// Reads from the input run on a goroutine that is never joined: a read from a blocking file such
// as a terminal cannot be interrupted, so Close must not wait for it. The joined worker only moves
// lines from that reader to Wait.
type Pauser struct {
	clk      clock.Clock
	interval time.Duration
	input    io.Reader
	logger   logging.Logger

	reads   chan inputRead
	lines   chan string
	eof     atomic.Bool
	stopped atomic.Bool
	workers *StoppableWorkers
}

type inputRead struct {
	line string
	err  error
}

// NewPauser starts reading lines from input. A nil clk uses the wall clock.
func NewPauser(ctx context.Context, input io.Reader, clk clock.Clock, logger logging.Logger) *Pauser {
	if clk == nil {
		clk = clock.New()
	}
	p := &Pauser{
		clk:      clk,
		interval: DefaultPollInterval,
		input:    input,
		logger:   logger,
		reads:    make(chan inputRead),
		lines:    make(chan string),
	}
	p.workers = NewStoppableWorkers(ctx, p.forwardLines)
	done := p.workers.Context().Done()
	goutils.PanicCapturingGo(func() { p.readInput(done) })
	return p
}

// readInput may stay blocked in a read after the pauser is closed; it returns once that read does.
func (p *Pauser) readInput(done <-chan struct{}) {
	reader := bufio.NewReader(p.input)
	for {
		line, err := reader.ReadString('\n')
		select {
		case p.reads <- inputRead{line: line, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (p *Pauser) forwardLines(ctx context.Context) {
	defer p.eof.Store(true)
	for {
		var read inputRead
		select {
		case read = <-p.reads:
		case <-ctx.Done():
			return
		}
		if read.err != nil && read.line == "" {
			if read.err != io.EOF {
				p.logger.Warnw("stopped reading keypresses", "error", read.err)
			}
			return
		}
		select {
		case p.lines <- strings.TrimSpace(read.line):
		case <-ctx.Done():
			return
		}
		if read.err != nil {
			return
		}
	}
}

// Wait blocks until a line is entered, the input ends, ctx is done or the pauser was asked to
// stop. It reports whether the caller should go on.
func (p *Pauser) Wait(ctx context.Context) bool {
	if p.stopped.Load() {
		return false
	}
	ticker := p.clk.Ticker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case line := <-p.lines:
			if strings.EqualFold(line, "q") {
				p.logger.Info("stop requested")
				p.stopped.Store(true)
				return false
			}
			return true
		case <-ticker.C:
			if ctx.Err() != nil || p.workers.Context().Err() != nil {
				return false
			}
			if p.eof.Load() {
				return true
			}
		}
	}
}

// Stopped reports whether "q" was entered.
func (p *Pauser) Stopped() bool {
	return p.stopped.Load()
}

// Close stops forwarding input and closes it when it is an io.Closer. It does not wait for a read
// that is already blocked.
func (p *Pauser) Close() error {
	p.workers.Stop()
	if closer, ok := p.input.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
