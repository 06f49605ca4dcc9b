// Package adapters provides typed producer helpers for the agent swarm
// vocabulary. They derive topics from agent and task identifiers and emit
// through any events.Broker-compatible emitter.
package adapters

import (
	"time"

	"github.com/agentstation/swarmcast/internal/server/events"
)

// Topic for swarm-wide events.
const SystemTopic = "system"

// Emitter is satisfied by *events.Broker.
type Emitter interface {
	Emit(topic string, kind events.Kind, payload any) error
}

// AgentTopic returns the topic for an agent.
func AgentTopic(agentID string) string { return "agent-" + agentID }

// TaskTopic returns the topic for a task.
func TaskTopic(taskID string) string { return "task-" + taskID }

// AgentInfo describes an agent at creation time.
type AgentInfo struct {
	ID           string            `json:"id"`
	Name         string            `json:"name,omitempty"`
	Role         string            `json:"role,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
}

// StatusChange is the payload of agent.status_changed.
type StatusChange struct {
	AgentID string `json:"agent_id"`
	From    string `json:"from,omitempty"`
	To      string `json:"to"`
}

// TaskInfo is the payload of task.started.
type TaskInfo struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id,omitempty"`
	Name    string `json:"name,omitempty"`
}

// TaskResult is the payload of task.completed.
type TaskResult struct {
	TaskID     string `json:"task_id"`
	AgentID    string `json:"agent_id,omitempty"`
	Success    bool   `json:"success"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Sample is the payload of metric.sample.
type Sample struct {
	AgentID string  `json:"agent_id"`
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Unit    string  `json:"unit,omitempty"`
}

// AlertLevel grades system alerts.
type AlertLevel string

// Alert levels.
const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Alert is the payload of system.alert.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Message string     `json:"message"`
	Source  string     `json:"source,omitempty"`
}

// Swarm emits swarm events with derived topics.
type Swarm struct {
	emitter Emitter
}

// NewSwarm wraps an emitter.
func NewSwarm(emitter Emitter) *Swarm {
	return &Swarm{emitter: emitter}
}

// AgentCreated announces a new agent on its own topic.
func (s *Swarm) AgentCreated(info AgentInfo) error {
	return s.emitter.Emit(AgentTopic(info.ID), events.AgentCreated, info)
}

// AgentDeleted announces the removal of an agent.
func (s *Swarm) AgentDeleted(agentID string) error {
	return s.emitter.Emit(AgentTopic(agentID), events.AgentDeleted, map[string]string{"id": agentID})
}

// AgentStatus reports a status transition.
func (s *Swarm) AgentStatus(agentID, from, to string) error {
	return s.emitter.Emit(AgentTopic(agentID), events.StatusChanged, StatusChange{AgentID: agentID, From: from, To: to})
}

// TaskStarted reports a task start on the task topic.
func (s *Swarm) TaskStarted(info TaskInfo) error {
	return s.emitter.Emit(TaskTopic(info.TaskID), events.TaskStarted, info)
}

// TaskCompleted reports a task outcome on the task topic.
func (s *Swarm) TaskCompleted(taskID, agentID string, took time.Duration, taskErr error) error {
	res := TaskResult{
		TaskID:     taskID,
		AgentID:    agentID,
		Success:    taskErr == nil,
		DurationMS: took.Milliseconds(),
	}
	if taskErr != nil {
		res.Error = taskErr.Error()
	}
	return s.emitter.Emit(TaskTopic(taskID), events.TaskCompleted, res)
}

// Metric reports a performance sample for an agent.
func (s *Swarm) Metric(sample Sample) error {
	return s.emitter.Emit(AgentTopic(sample.AgentID), events.MetricSample, sample)
}

// Alert raises a swarm-wide alert.
func (s *Swarm) Alert(level AlertLevel, source, message string) error {
	return s.emitter.Emit(SystemTopic, events.SystemAlert, Alert{Level: level, Message: message, Source: source})
}
