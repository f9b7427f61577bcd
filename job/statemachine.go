package job

import (
	"sync"
	"time"

	"github.com/arcflow/orchestrator/orcherr"
)

// StateMachine owns the in-process table of jobs and enforces the
// transition graph of spec §4.6, including at-most-once application per
// (job_id, transition name) so a replayed envelope delivery never
// double-applies a transition (spec §4.6 "At-most-once persistence per
// transition").
type StateMachine struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	applied map[string]map[string]bool // job_id -> transition name -> seen
}

// NewStateMachine builds an empty StateMachine.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		jobs:    make(map[string]*Job),
		applied: make(map[string]map[string]bool),
	}
}

// Create registers a new job in StatusQueued. It is itself idempotent: a
// replayed envelope for a job_id already known returns the existing job
// (spec §8 "re-delivering the same JobEnvelope ... is a no-op").
func (sm *StateMachine) Create(j *Job) (existing *Job, created bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if prior, ok := sm.jobs[j.JobID]; ok {
		return prior, false
	}
	now := time.Now().UTC()
	j.Status = StatusQueued
	j.CreatedAt, j.UpdatedAt = now, now
	sm.jobs[j.JobID] = j
	return j, true
}

// Get returns the job for jobID, or nil if unknown.
func (sm *StateMachine) Get(jobID string) *Job {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.jobs[jobID]
}

// StuckSince returns every job in StatusRunning whose UpdatedAt is older
// than cutoff, for the supervisor sweep of spec §4.6 "Recovery".
func (sm *StateMachine) StuckSince(cutoff time.Time) []*Job {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	var stuck []*Job
	for _, j := range sm.jobs {
		if j.Status == StatusRunning && j.UpdatedAt.Before(cutoff) {
			stuck = append(stuck, j)
		}
	}
	return stuck
}

// Transition applies the named transition to jobID's current state, moving
// it to `to`. If `name` was already applied to this job, Transition is a
// no-op and returns (false, nil) — the at-most-once guard. An out-of-order
// transition (one the graph does not permit from the job's current state)
// returns orcherr.InvalidTransition.
func (sm *StateMachine) Transition(jobID string, to Status, name string) (applied bool, err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	j, ok := sm.jobs[jobID]
	if !ok {
		return false, orcherr.New(orcherr.InvalidTransition, "job", "Transition",
			"unknown job_id "+jobID, nil)
	}

	seen := sm.applied[jobID]
	if seen == nil {
		seen = map[string]bool{}
		sm.applied[jobID] = seen
	}
	if seen[name] {
		return false, nil
	}

	if !CanTransition(j.Status, to) {
		return false, orcherr.New(orcherr.InvalidTransition, "job", "Transition",
			"cannot move job "+jobID+" from "+string(j.Status)+" to "+string(to), nil)
	}

	j.Status = to
	j.UpdatedAt = time.Now().UTC()
	seen[name] = true
	return true, nil
}
