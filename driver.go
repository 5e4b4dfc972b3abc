package lambdacore

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/mackee/lambdacore/lambdacontext"
	"github.com/mackee/lambdacore/lambdaerr"
	"github.com/mackee/lambdacore/lambdalog"
	"github.com/mackee/lambdacore/lifecycle"
	"github.com/mackee/lambdacore/runtimeapi"
	"github.com/mackee/lambdacore/xray"
)

// Driver composes the Runtime API client (C3), the lifecycle state machine
// (C4), and a handler (C6/C7) into the top-level run loop (spec.md §4.5).
// It owns the single HTTP connection to the Runtime API and the sequence of
// per-invocation background-task collectors handed out to handlers.
type Driver struct {
	client      *runtimeapi.Client
	handlerInit HandlerInitFunc
	log         lambdalog.Logger
	maxTimes    int
}

// NewDriver builds a Driver from cfg, targeting cfg.RuntimeAPI. handlerInit
// is invoked exactly once, at the start of Run, to construct the Handler;
// its failure is reported as a fatal HandlerInitFailure.
func NewDriver(cfg Config, handlerInit HandlerInitFunc, log lambdalog.Logger) *Driver {
	if log == nil {
		log = lambdalog.Discard
	}
	return &Driver{
		client:      runtimeapi.NewClient(cfg.RuntimeAPI, cfg.RequestTimeout()),
		handlerInit: handlerInit,
		log:         log,
		maxTimes:    cfg.MaxTimes,
	}
}

// Run drives the lifecycle machine until it reaches Shutdown. ctx governs
// cancellation: when ctx is done, the driver finishes its current
// invocation (if any) and then shuts down rather than aborting mid-flight.
// Run returns the error that caused a fatal shutdown, if any; a clean
// bounded-execution exit (or ctx cancellation) returns nil.
func (d *Driver) Run(ctx context.Context) error {
	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	state := lifecycle.Initial(d.maxTimes)
	state, action := lifecycle.Step(state, lifecycle.Event{Kind: lifecycle.EventConnect})
	if action.Kind != lifecycle.ActionOpenTransportAndConstructHandler {
		panic("lambdacore: unexpected initial action")
	}

	handler, handlerErr := d.constructHandler(signalCtx)

	state, action = lifecycle.Step(state, lifecycle.Event{Kind: lifecycle.EventConnected})
	if action.Kind == lifecycle.ActionWait {
		kind := lifecycle.EventHandlerInitOK
		if handlerErr != nil {
			kind = lifecycle.EventHandlerInitErr
		}
		state, action = lifecycle.Step(state, lifecycle.Event{Kind: kind, HandlerErr: handlerErr})
	}

	if action.Kind == lifecycle.ActionPostInitError {
		return d.shutdownAfterInitError(signalCtx, state, handlerErr)
	}
	if action.Kind != lifecycle.ActionSendNext {
		panic("lambdacore: unexpected post-startup action")
	}

	d.logColdStart()
	return d.runLoop(signalCtx, state, handler)
}

func (d *Driver) constructHandler(ctx context.Context) (Handler, error) {
	h, err := d.handlerInit(ctx)
	if err != nil {
		return nil, lambdaerr.New(lambdaerr.KindHandlerInitFailure, err)
	}
	return h, nil
}

func (d *Driver) shutdownAfterInitError(ctx context.Context, state lifecycle.State, handlerErr error) error {
	re := asRuntimeError(lambdaerr.KindHandlerInitFailure, handlerErr)
	if err := d.client.PostInitError(ctx, re); err != nil {
		d.log.Log(lambdalog.LevelError, "failed to post init error", lambdalog.F("error", err))
	}
	state, action := lifecycle.Step(state, lifecycle.Event{Kind: lifecycle.EventReported})
	if action.Kind == lifecycle.ActionCloseTransport {
		lifecycle.Step(state, lifecycle.Event{Kind: lifecycle.EventTransportClosed})
	}
	return re
}

// runLoop implements Running's WaitingForNext -> RunningHandler ->
// ReportingResult cycle until the machine asks to shut down.
func (d *Driver) runLoop(ctx context.Context, state lifecycle.State, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			state, _ = lifecycle.Step(state, lifecycle.Event{Kind: lifecycle.EventClose})
			if state.Phase != lifecycle.PhaseRunning {
				return d.closeTransport(state, nil)
			}
		default:
		}

		inv, payload, err := d.client.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				state, _ = lifecycle.Step(state, lifecycle.Event{Kind: lifecycle.EventClose})
				return d.closeTransport(state, nil)
			}
			state, _ = lifecycle.Step(state, lifecycle.Event{Kind: lifecycle.EventTransportError, Err: err})
			d.log.Log(lambdalog.LevelError, "runtime api next failed", lambdalog.F("error", err))
			return d.closeTransport(state, err)
		}

		var action lifecycle.Action
		state, action = lifecycle.Step(state, lifecycle.Event{Kind: lifecycle.EventNext, RequestID: inv.RequestID})
		if action.Kind != lifecycle.ActionInvokeHandler {
			panic("lambdacore: unexpected action after next")
		}

		// Cancelling ctx does not cut the current invocation short: the
		// handler runs and its outcome is reported before ctx is checked again.
		workCtx := context.WithoutCancel(ctx)
		resp, handlerErr := d.invoke(workCtx, handler, inv, payload)

		state, action = lifecycle.Step(state, lifecycle.Event{Kind: lifecycle.EventInvocationDone, Err: handlerErr})
		if action.Kind != lifecycle.ActionReport {
			panic("lambdacore: unexpected action after invocationDone")
		}
		d.report(workCtx, inv.RequestID, resp, handlerErr)

		state, action = lifecycle.Step(state, lifecycle.Event{Kind: lifecycle.EventReported})
		switch action.Kind {
		case lifecycle.ActionSendNext:
			continue
		case lifecycle.ActionCloseTransport:
			return d.closeTransport(state, nil)
		default:
			panic("lambdacore: unexpected action after reported")
		}
	}
}

// closeTransport runs the machine's final transportClosed transition and
// returns err unchanged, so a transport failure that triggered the shutdown
// is still visible to Run's caller while a clean bounded-execution or
// cancellation exit reports nil.
func (d *Driver) closeTransport(state lifecycle.State, err error) error {
	lifecycle.Step(state, lifecycle.Event{Kind: lifecycle.EventTransportClosed})
	return err
}

// invoke builds the per-invocation context, calls handler, and drains its
// background-task collector before returning — spec.md §4.5's rule that the
// driver drains spawned tasks before reporting invocationDone.
func (d *Driver) invoke(ctx context.Context, handler Handler, inv runtimeapi.Invocation, payload []byte) (LambdaResponse, error) {
	lc := &lambdacontext.LambdaContext{
		RequestID:           inv.RequestID,
		InvokedFunctionARN:  inv.InvokedFunctionARN,
		Deadline:            time.UnixMilli(inv.DeadlineEpochMillis),
		RawTraceID:          inv.TraceID,
		Logger:              d.log.With(lambdalog.F("request_id", inv.RequestID)),
		Tasks:               lambdacontext.NewTaskCollector(d.log),
	}
	if inv.TraceID != "" {
		if tid, err := xray.Parse(inv.TraceID); err == nil {
			lc.TraceID = tid
		} else {
			lc.Logger.Log(lambdalog.LevelWarning, "invalid trace id header", lambdalog.F("trace_id", inv.TraceID))
		}
	}

	invCtx, cancel := lambdacontext.NewContext(ctx, lc)
	defer cancel()

	resp, err := func() (resp LambdaResponse, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = lambdaerr.FromPanic(lambdaerr.KindHandlerFailure, r)
			}
		}()
		return handler.Handle(invCtx, payload, lc)
	}()

	if waitErr := lc.Tasks.Wait(ctx); waitErr != nil {
		lc.Logger.Log(lambdalog.LevelWarning, "background tasks did not finish draining", lambdalog.F("error", waitErr))
	}
	return resp, err
}

func (d *Driver) report(ctx context.Context, requestID string, resp LambdaResponse, handlerErr error) {
	if handlerErr != nil {
		re := asRuntimeError(lambdaerr.KindHandlerFailure, handlerErr)
		if err := d.client.PostInvocationError(ctx, requestID, re); err != nil {
			d.log.Log(lambdalog.LevelError, "failed to post invocation error", lambdalog.F("request_id", requestID), lambdalog.F("error", err))
		}
		return
	}

	if resp.IsStreamed() {
		d.reportStreamed(ctx, requestID, resp.Producer())
		return
	}

	body, contentType := resp.Buffered()
	if err := d.client.PostResult(ctx, requestID, body, contentType); err != nil {
		d.log.Log(lambdalog.LevelError, "failed to post result", lambdalog.F("request_id", requestID), lambdalog.F("error", err))
	}
}

// reportStreamed adapts a StreamProducer to the io.ReadCloser
// PostStreamingResult expects, running the producer in its own goroutine
// against an io.Pipe — the same shape ridgenative's streaming response
// writer uses to bridge a push-style handler onto a pull-style request body.
func (d *Driver) reportStreamed(ctx context.Context, requestID string, producer StreamProducer) {
	pr, pw := io.Pipe()
	go func() {
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = lambdaerr.FromPanic(lambdaerr.KindHandlerFailure, r)
				}
			}()
			return producer(ctx, pipeWriter{pw})
		}()
		_ = pw.CloseWithError(err)
	}()

	if err := d.client.PostStreamingResult(ctx, requestID, pr); err != nil {
		d.log.Log(lambdalog.LevelError, "failed to post streaming result", lambdalog.F("request_id", requestID), lambdalog.F("error", err))
	}
}

type pipeWriter struct {
	w *io.PipeWriter
}

func (p pipeWriter) Write(chunk []byte) error {
	_, err := p.w.Write(chunk)
	return err
}

func asRuntimeError(kind lambdaerr.Kind, err error) *lambdaerr.RuntimeError {
	if re, ok := err.(*lambdaerr.RuntimeError); ok {
		return re
	}
	return lambdaerr.New(kind, err)
}

// logColdStart emits one informational line with process RSS and CPU
// percentage right after handler construction, for cold-start diagnostics —
// the window during which CloudWatch billing and the Lambda console report
// "Init Duration" is over by the time this line is written.
func (d *Driver) logColdStart() {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return
	}
	cpuPct, _ := p.CPUPercent()
	d.log.Log(lambdalog.LevelInfo, "handler ready",
		lambdalog.F("rss_bytes", mem.RSS),
		lambdalog.F("cpu_percent", cpuPct),
	)
}
