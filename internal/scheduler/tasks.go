package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskProcessSession = "sessions.process"

const TaskSynthesizeReport = "sessions.synthesize"

type ProcessSessionPayload struct {
	SessionID string `json:"sessionId"`
}

type SynthesizeReportPayload struct {
	SessionID string `json:"sessionId"`
}

func NewProcessSessionTask(payload ProcessSessionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProcessSession, data), nil
}

func ParseProcessSessionPayload(task *asynq.Task) (ProcessSessionPayload, error) {
	var payload ProcessSessionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProcessSessionPayload{}, err
	}
	return payload, nil
}

func NewSynthesizeReportTask(payload SynthesizeReportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSynthesizeReport, data), nil
}

func ParseSynthesizeReportPayload(task *asynq.Task) (SynthesizeReportPayload, error) {
	var payload SynthesizeReportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SynthesizeReportPayload{}, err
	}
	return payload, nil
}
