package workflow

import (
	"fmt"

	"github.com/ardiwinata/qms-compliance/internal"
)

type NodeType string

const (
	NodeStart     NodeType = "start"
	NodeApproval  NodeType = "approval"
	NodeCondition NodeType = "condition"
	NodeEnd       NodeType = "end"
)

// Context is the data accumulated by an instance from prior decisions.
// Guards evaluate against it.
type Context map[string]any

// Guard is an edge predicate. A nil guard always passes.
type Guard func(Context) bool

type Node struct {
	ID   string
	Type NodeType
	Name string
	// Meta carries engine-specific data, e.g. the approver of an approval
	// node.
	Meta map[string]any
}

type Edge struct {
	From    string
	To      string
	Guard   Guard
	Default bool
}

// Graph is a directed acyclic workflow definition: exactly one start, at
// least one end, single active node semantics. Both the approval chain and
// the audit finding lifecycle are instantiations of it.
type Graph struct {
	nodes map[string]*Node
	order []string
	edges map[string][]Edge
}

func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[string][]Edge),
	}
}

func invalidGraph(format string, args ...any) *internal.AppError {
	return internal.NewValidationError(fmt.Sprintf(format, args...), internal.ErrCodeInvalidWorkflowGraph)
}

func (g *Graph) AddNode(n Node) error {
	if n.ID == "" {
		return invalidGraph("node id is required")
	}
	if _, exists := g.nodes[n.ID]; exists {
		return invalidGraph("duplicate node id %q", n.ID)
	}
	switch n.Type {
	case NodeStart, NodeApproval, NodeCondition, NodeEnd:
	default:
		return invalidGraph("unknown node type %q", n.Type)
	}
	node := n
	g.nodes[n.ID] = &node
	g.order = append(g.order, n.ID)
	return nil
}

// AddEdge appends an edge in declaration order. Edges that would close a
// cycle are rejected here, at construction time, so execution never has to
// guard against revisiting a node.
func (g *Graph) AddEdge(e Edge) error {
	if _, ok := g.nodes[e.From]; !ok {
		return invalidGraph("edge references unknown node %q", e.From)
	}
	if _, ok := g.nodes[e.To]; !ok {
		return invalidGraph("edge references unknown node %q", e.To)
	}
	if e.From == e.To || g.reaches(e.To, e.From) {
		return invalidGraph("edge %s -> %s would create a cycle", e.From, e.To)
	}
	g.edges[e.From] = append(g.edges[e.From], e)
	return nil
}

// reaches reports whether to is reachable from from.
func (g *Graph) reaches(from, to string) bool {
	visited := map[string]bool{}
	stack := []string{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == to {
			return true
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, e := range g.edges[id] {
			stack = append(stack, e.To)
		}
	}
	return false
}

func (g *Graph) Node(id string) *Node {
	return g.nodes[id]
}

func (g *Graph) StartNode() *Node {
	for _, id := range g.order {
		if g.nodes[id].Type == NodeStart {
			return g.nodes[id]
		}
	}
	return nil
}

// Validate enforces the structural rules shared by every workflow this
// system runs: a single start, at least one end, no orphan nodes, and an
// end reachable from every node.
func (g *Graph) Validate() error {
	var starts, ends int
	for _, id := range g.order {
		switch g.nodes[id].Type {
		case NodeStart:
			starts++
		case NodeEnd:
			ends++
		}
	}
	if starts != 1 {
		return invalidGraph("graph must have exactly one start node, found %d", starts)
	}
	if ends == 0 {
		return invalidGraph("graph must have at least one end node")
	}

	start := g.StartNode()
	for _, id := range g.order {
		node := g.nodes[id]
		if node.ID != start.ID && !g.reaches(start.ID, node.ID) {
			return invalidGraph("node %q is not reachable from start", node.ID)
		}
		if node.Type != NodeEnd && !g.reachesEnd(node.ID) {
			return invalidGraph("node %q cannot reach an end node", node.ID)
		}
		if node.Type != NodeEnd && len(g.edges[node.ID]) == 0 {
			return invalidGraph("non-end node %q has no outgoing edges", node.ID)
		}
		if node.Type == NodeEnd && len(g.edges[node.ID]) > 0 {
			return invalidGraph("end node %q must not have outgoing edges", node.ID)
		}
	}
	return nil
}

func (g *Graph) reachesEnd(from string) bool {
	visited := map[string]bool{}
	stack := []string{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if g.nodes[id].Type == NodeEnd {
			return true
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, e := range g.edges[id] {
			stack = append(stack, e.To)
		}
	}
	return false
}

// next resolves the successor of a node. Condition nodes evaluate guards in
// declared edge order and take the first that passes, falling back to the
// default edge; everything else follows its single outgoing edge.
func (g *Graph) next(from *Node, c Context) (*Node, error) {
	edges := g.edges[from.ID]
	if len(edges) == 0 {
		return nil, invalidGraph("node %q has no outgoing edges", from.ID)
	}

	if from.Type == NodeCondition {
		var fallback *Edge
		for i := range edges {
			e := &edges[i]
			if e.Default {
				if fallback == nil {
					fallback = e
				}
				continue
			}
			if e.Guard != nil && e.Guard(c) {
				return g.nodes[e.To], nil
			}
		}
		if fallback != nil {
			return g.nodes[fallback.To], nil
		}
		return nil, ErrNoMatchingBranch
	}

	return g.nodes[edges[0].To], nil
}

// LinearApprovalGraph builds the start -> approval x n -> end shape the
// approval chain engine runs. Node meta carries the step order.
func LinearApprovalGraph(steps int) (*Graph, error) {
	if steps < 1 {
		return nil, invalidGraph("approval graph needs at least one step")
	}
	g := NewGraph()
	if err := g.AddNode(Node{ID: "start", Type: NodeStart}); err != nil {
		return nil, err
	}
	prev := "start"
	for i := 0; i < steps; i++ {
		id := fmt.Sprintf("step_%d", i)
		if err := g.AddNode(Node{ID: id, Type: NodeApproval, Meta: map[string]any{"order": i}}); err != nil {
			return nil, err
		}
		if err := g.AddEdge(Edge{From: prev, To: id}); err != nil {
			return nil, err
		}
		prev = id
	}
	if err := g.AddNode(Node{ID: "end", Type: NodeEnd}); err != nil {
		return nil, err
	}
	if err := g.AddEdge(Edge{From: prev, To: "end"}); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// RectificationReviewGraph is the per-rectification shape the audit finding
// lifecycle runs: one review node branching on the verifier's outcome.
// Resubmission after rejection starts a fresh instance, which is what keeps
// the graph acyclic.
func RectificationReviewGraph() (*Graph, error) {
	g := NewGraph()
	nodes := []Node{
		{ID: "start", Type: NodeStart},
		{ID: "review", Type: NodeApproval},
		{ID: "outcome", Type: NodeCondition},
		{ID: "closed", Type: NodeEnd},
		{ID: "rejected", Type: NodeEnd},
	}
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	edges := []Edge{
		{From: "start", To: "review"},
		{From: "review", To: "outcome"},
		{From: "outcome", To: "closed", Guard: func(c Context) bool { return c["verified"] == true }},
		{From: "outcome", To: "rejected", Default: true},
	}
	for _, e := range edges {
		if err := g.AddEdge(e); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

var (
	ErrNoMatchingBranch = internal.ErrNoMatchingBranch
	ErrInstanceFinished = internal.NewConflictError("workflow instance already finished", internal.ErrCodeWorkflowInstanceFinished)
)
