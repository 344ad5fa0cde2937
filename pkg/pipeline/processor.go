package pipeline

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/AetheriusMC/aetherius/pkg/log"
	"github.com/AetheriusMC/aetherius/pkg/types"
)

// Sender delivers a command line to the running server's stdin
type Sender interface {
	SendCommand(text string) error
}

// ProcessorConfig tunes the queue processing loop
type ProcessorConfig struct {
	// PollInterval is the pending/ scan interval (default 500ms)
	PollInterval time.Duration
	// CaptureWindow is how long after sending a command its output is
	// collected (default 1s)
	CaptureWindow time.Duration
	// GCMaxAge is the age past which stale queue files are removed
	// (default 300s)
	GCMaxAge time.Duration
}

func (c *ProcessorConfig) withDefaults() ProcessorConfig {
	out := *c
	if out.PollInterval <= 0 {
		out.PollInterval = 500 * time.Millisecond
	}
	if out.CaptureWindow <= 0 {
		out.CaptureWindow = time.Second
	}
	if out.GCMaxAge <= 0 {
		out.GCMaxAge = 5 * time.Minute
	}
	return out
}

// Processor is the owning supervisor's side of the command queue: it polls
// pending/, runs each request against the live server with an output
// capture window, and writes the completed file the waiter consumes.
type Processor struct {
	queue    *Queue
	sender   Sender
	captures *CaptureSet
	cfg      ProcessorConfig
	logger   zerolog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewProcessor wires a processor to a queue, a stdin sender and the
// capture set fed by the server's stdout pump.
func NewProcessor(queue *Queue, sender Sender, captures *CaptureSet, cfg ProcessorConfig) *Processor {
	return &Processor{
		queue:    queue,
		sender:   sender,
		captures: captures,
		cfg:      cfg.withDefaults(),
		logger:   log.WithComponent("queue-processor"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the polling loop
func (p *Processor) Start() {
	go p.run()
}

// Stop halts the loop and waits for the in-flight pass to finish
func (p *Processor) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

func (p *Processor) run() {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.pass()
		case <-p.stopCh:
			return
		}
	}
}

// pass handles one polling cycle: expired requests get timeout results,
// live ones run with a capture window, then housekeeping.
func (p *Processor) pass() {
	reqs, err := p.queue.Pending()
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to scan pending queue")
		return
	}

	now := time.Now()
	for _, req := range reqs {
		select {
		case <-p.stopCh:
			return
		default:
		}

		if req.Expired(now) {
			p.timeout(req)
			continue
		}
		p.execute(req)
	}

	p.captures.Expire()
	p.queue.GC(p.cfg.GCMaxAge)
}

func (p *Processor) timeout(req *types.CommandRequest) {
	res := &types.CommandResult{
		ID:      req.ID,
		Status:  types.CommandTimeout,
		Success: false,
		Error:   "command expired before processing",
	}
	if err := p.queue.Complete(res); err != nil {
		p.logger.Error().Err(err).Str("id", req.ID).Msg("failed to write timeout result")
	}
}

func (p *Processor) execute(req *types.CommandRequest) {
	started := time.Now()
	verb := BaseVerb(req.Command)

	p.captures.Open(req.ID, req.Command)
	sendErr := p.sender.SendCommand(req.Command)

	if sendErr == nil {
		// Collect the reply for the capture window
		select {
		case <-time.After(p.cfg.CaptureWindow):
		case <-p.stopCh:
		}
	}

	matched, raw := p.captures.Close(req.ID)

	res := &types.CommandResult{
		ID:            req.ID,
		Status:        types.CommandCompleted,
		ExecutionTime: time.Since(started).Seconds(),
	}
	if sendErr != nil {
		res.Success = false
		res.Error = sendErr.Error()
	} else {
		res.Output, res.Success = Reduce(verb, matched, raw)
	}

	if err := p.queue.Complete(res); err != nil {
		p.logger.Error().Err(err).Str("id", req.ID).Msg("failed to write command result")
	}
	p.logger.Debug().Str("id", req.ID).Str("verb", verb).Bool("success", res.Success).
		Msg("processed queued command")
}
