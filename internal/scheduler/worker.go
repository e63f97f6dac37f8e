package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"garagecall_backend/platform/config"
	"garagecall_backend/platform/logger"
)

// SessionProcessor runs the workflow for a freshly started session:
// damage analysis followed by call dispatch.
type SessionProcessor interface {
	Process(ctx context.Context, sessionID uuid.UUID) error
}

// ReportSynthesizer assembles the final report for a session whose calls
// have all finished.
type ReportSynthesizer interface {
	Synthesize(ctx context.Context, sessionID uuid.UUID) error
}

type Worker struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	processor   SessionProcessor
	synthesizer ReportSynthesizer
	log         *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, processor SessionProcessor, synthesizer ReportSynthesizer, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:      server,
		mux:         mux,
		processor:   processor,
		synthesizer: synthesizer,
		log:         log,
	}

	mux.HandleFunc(TaskProcessSession, w.handleProcessSession)
	mux.HandleFunc(TaskSynthesizeReport, w.handleSynthesizeReport)

	return w, nil
}

func (w *Worker) handleProcessSession(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseProcessSessionPayload(task)
	if err != nil {
		return err
	}

	sessionID, err := uuid.Parse(payload.SessionID)
	if err != nil {
		return err
	}

	return w.processor.Process(ctx, sessionID)
}

func (w *Worker) handleSynthesizeReport(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSynthesizeReportPayload(task)
	if err != nil {
		return err
	}

	sessionID, err := uuid.Parse(payload.SessionID)
	if err != nil {
		return err
	}

	return w.synthesizer.Synthesize(ctx, sessionID)
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
