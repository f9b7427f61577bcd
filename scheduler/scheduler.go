// Package scheduler implements the DAG Scheduler (spec §4.2): executing a
// ResolvedPlaybook as a directed acyclic graph of agent invocations, with
// concurrency bounded by max_parallel_agents and children started only once
// every parent has finished.
//
// The fan-out/fan-in shape generalizes a parallel-agent runner
// (golang.org/x/sync/errgroup driving a pool of goroutines) from a fixed
// parallel set to a dynamically-unlocked ready queue so that dependency
// order is honoured: errgroup.Group.SetLimit bounds concurrency to
// max_parallel_agents, and each node's completion schedules its newly
// unblocked children onto the same group.
package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arcflow/orchestrator/agent"
	"github.com/arcflow/orchestrator/config"
	"github.com/arcflow/orchestrator/orcherr"
	"github.com/arcflow/orchestrator/playbook"
)

// AgentExecutionResult is the per-node outcome the spec names (spec §3, §4.2).
type AgentExecutionResult struct {
	AgentID   string
	Output    map[string]any
	Status    string // "completed" | "failed" | "parse_failed" | "cancelled"
	Attempts  int
	StartedAt time.Time
	EndedAt   time.Time
}

// Invoker is the subset of agent.Invoker the scheduler depends on.
type Invoker interface {
	Invoke(ctx context.Context, tenantID string, def config.AgentDefinition, in agent.Input) (agent.Result, error)
}

// Scheduler executes a ResolvedPlaybook's DAG.
type Scheduler struct {
	Invoker           Invoker
	MaxParallelAgents int // default 4
}

// NewScheduler builds a Scheduler bound to inv with the given concurrency
// bound (<=0 falls back to the spec default of 4).
func NewScheduler(inv Invoker, maxParallelAgents int) *Scheduler {
	if maxParallelAgents <= 0 {
		maxParallelAgents = 4
	}
	return &Scheduler{Invoker: inv, MaxParallelAgents: maxParallelAgents}
}

// Run executes rp for tenantID against jobInput, returning one
// AgentExecutionResult per node (spec §4.2 "Contract"). ctx cancellation
// stops scheduling new nodes but lets in-flight agents finish (spec §4.2
// "Cancellation"); unscheduled nodes are reported with status "cancelled".
func (s *Scheduler) Run(ctx context.Context, tenantID string, rp *playbook.ResolvedPlaybook, jobInput config.JobInput) ([]AgentExecutionResult, error) {
	indegree, children := buildGraph(rp.Nodes, rp.Edges)

	var mu sync.Mutex
	outputs := make(map[string]map[string]any, len(rp.Nodes))
	results := make(map[string]AgentExecutionResult, len(rp.Nodes))

	var eg errgroup.Group
	eg.SetLimit(s.MaxParallelAgents)
	var abortOnce sync.Once
	var abortErr error

	ready := make([]string, 0, len(rp.Nodes))
	for _, n := range rp.Nodes {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	// pending counts scheduled nodes whose work has not finished; a child is
	// added before its parent's work returns, so it reaches zero only once
	// every reachable node has run.
	var pending sync.WaitGroup

	var scheduleNode func(nodeID string)
	scheduleNode = func(nodeID string) {
		pending.Add(1)
		// eg.Go blocks while MaxParallelAgents goroutines are active; calling
		// it from its own goroutine keeps a finishing parent from holding its
		// slot while it waits for a slot for its child.
		go eg.Go(func() error {
			defer pending.Done()
			mu.Lock()
			cancelled := ctx.Err() != nil
			mu.Unlock()
			if cancelled {
				s.recordCancelled(nodeID, &mu, results)
				s.advance(nodeID, rp, indegree, children, &mu, results, scheduleNode)
				return nil
			}

			def := rp.Agents[nodeID]
			started := time.Now()

			mu.Lock()
			parents := parentOutputsFor(nodeID, rp.Edges, outputs)
			mu.Unlock()

			r, err := s.Invoker.Invoke(ctx, tenantID, def, agent.Input{JobInput: jobInput, ParentOutputs: parents})

			mu.Lock()
			if err != nil && orcherr.Is(err, orcherr.AgentFailed) {
				abortOnce.Do(func() { abortErr = err })
			}
			outputs[nodeID] = r.Output
			results[nodeID] = AgentExecutionResult{
				AgentID:   nodeID,
				Output:    r.Output,
				Status:    r.Status,
				Attempts:  r.Attempts,
				StartedAt: started,
				EndedAt:   started.Add(r.Duration),
			}
			mu.Unlock()

			s.advance(nodeID, rp, indegree, children, &mu, results, scheduleNode)
			return nil
		})
	}

	for _, n := range ready {
		scheduleNode(n)
	}
	pending.Wait()
	_ = eg.Wait()

	out := make([]AgentExecutionResult, 0, len(rp.Nodes))
	for _, n := range rp.Nodes {
		out = append(out, results[n])
	}
	return out, abortErr
}

// advance decrements nodeID's children's indegree and schedules any that
// reach zero (spec §4.2 "when a node completes, decrement indegrees").
func (s *Scheduler) advance(nodeID string, rp *playbook.ResolvedPlaybook, indegree map[string]int, children map[string][]string, mu *sync.Mutex, results map[string]AgentExecutionResult, scheduleNode func(string)) {
	mu.Lock()
	var next []string
	for _, child := range children[nodeID] {
		indegree[child]--
		if indegree[child] == 0 {
			next = append(next, child)
		}
	}
	mu.Unlock()

	for _, n := range next {
		scheduleNode(n)
	}
}

func (s *Scheduler) recordCancelled(nodeID string, mu *sync.Mutex, results map[string]AgentExecutionResult) {
	mu.Lock()
	defer mu.Unlock()
	now := time.Now()
	results[nodeID] = AgentExecutionResult{AgentID: nodeID, Status: "cancelled", StartedAt: now, EndedAt: now}
}

func buildGraph(nodes []string, edges []config.PlaybookEdge) (indegree map[string]int, children map[string][]string) {
	indegree = make(map[string]int, len(nodes))
	children = make(map[string][]string, len(nodes))
	for _, n := range nodes {
		indegree[n] = 0
	}
	for _, e := range edges {
		indegree[e.To]++
		children[e.From] = append(children[e.From], e.To)
	}
	return indegree, children
}

// parentOutputsFor collects the outputs of nodeID's direct parents. A parent
// that hasn't produced an output yet (should not happen given the ordering
// guarantee) or that failed contributes a nil entry (spec §4.2 "its children
// still run with a null parent entry").
func parentOutputsFor(nodeID string, edges []config.PlaybookEdge, outputs map[string]map[string]any) map[string]map[string]any {
	parents := map[string]map[string]any{}
	for _, e := range edges {
		if e.To == nodeID {
			parents[e.From] = outputs[e.From]
		}
	}
	return parents
}
