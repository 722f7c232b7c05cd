package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianhealth/hospital-ai-platform/pkg/logging"
)

// Service is the transport-facing conversation entry point. The Engine
// implements it directly; the Dispatcher implements it by queueing the
// turn and waiting for a worker.
type Service interface {
	HandleTurn(ctx context.Context, callerID, utterance string) (string, error)
}

var _ Service = (*Engine)(nil)
var _ Service = (*Dispatcher)(nil)

// turnJob is the queued form of one conversation turn.
type turnJob struct {
	JobID     string `json:"job_id"`
	CallerID  string `json:"caller_id"`
	Utterance string `json:"utterance"`
}

type turnResult struct {
	reply string
	err   error
}

// Dispatcher decouples transports from turn processing with a queue and
// a worker pool. Transports submit a turn and block for the reply;
// workers drain the queue and run the engine. Per-caller ordering still
// holds because the engine serializes turns by caller.
type Dispatcher struct {
	engine  *Engine
	queue   queueClient
	workers int
	timeout time.Duration
	logger  *logging.Logger

	pending sync.Map // jobID -> chan turnResult
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Start must be called before
// HandleTurn will complete.
func NewDispatcher(engine *Engine, queue queueClient, workers int, timeout time.Duration, logger *logging.Logger) *Dispatcher {
	if engine == nil {
		panic("dialog: engine cannot be nil")
	}
	if queue == nil {
		panic("dialog: queue cannot be nil")
	}
	if workers <= 0 {
		workers = 2
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		engine:  engine,
		queue:   queue,
		workers: workers,
		timeout: timeout,
		logger:  logger.WithComponent("dispatcher"),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled;
// Wait blocks until they have drained.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Wait blocks until all workers have stopped.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// HandleTurn enqueues the turn and waits for a worker on this instance
// to process it.
func (d *Dispatcher) HandleTurn(ctx context.Context, callerID, utterance string) (string, error) {
	job := turnJob{
		JobID:     uuid.NewString(),
		CallerID:  callerID,
		Utterance: utterance,
	}
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("dialog: failed to marshal turn job: %w", err)
	}

	ch := make(chan turnResult, 1)
	d.pending.Store(job.JobID, ch)
	defer d.pending.Delete(job.JobID)

	if err := d.queue.Send(ctx, string(body)); err != nil {
		return "", fmt.Errorf("dialog: failed to enqueue turn: %w", err)
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res.reply, res.err
	case <-timer.C:
		return "", errors.New("dialog: turn processing timed out")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		messages, err := d.queue.Receive(ctx, 5, 5)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("queue receive failed", "worker", id, "error", err)
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range messages {
			d.process(ctx, msg)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, msg queueMessage) {
	var job turnJob
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		d.logger.Error("dropping malformed turn job", "message_id", msg.ID, "error", err)
		if derr := d.queue.Delete(ctx, msg.ReceiptHandle); derr != nil {
			d.logger.Warn("failed to delete malformed job", "error", derr)
		}
		return
	}

	reply, err := d.engine.HandleTurn(ctx, job.CallerID, job.Utterance)

	if chAny, ok := d.pending.Load(job.JobID); ok {
		chAny.(chan turnResult) <- turnResult{reply: reply, err: err}
	} else {
		// Submitted by another instance or the submitter gave up; the
		// session state is already saved, only the reply is lost.
		d.logger.Warn("no waiter for turn result", "job_id", job.JobID)
	}

	if derr := d.queue.Delete(ctx, msg.ReceiptHandle); derr != nil {
		d.logger.Warn("failed to delete processed job", "error", derr)
	}
}
