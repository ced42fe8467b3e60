package query

import "github.com/poiesic/ragflow/core"

// Monitor provides hooks to observe a question being answered.
type Monitor interface {
	Start(question string)
	AfterRetrieval(points []core.ScoredPoint)
	BeforeGeneration(prompt string)
	Finish(result core.QueryResult)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                      {}
func (n *noopMonitor) AfterRetrieval(_ []core.ScoredPoint) {}
func (n *noopMonitor) BeforeGeneration(_ string)           {}
func (n *noopMonitor) Finish(_ core.QueryResult)           {}
