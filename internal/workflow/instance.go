package workflow

type InstanceStatus string

const (
	InstanceRunning   InstanceStatus = "running"
	InstanceCompleted InstanceStatus = "completed"
)

// Instance executes a validated graph with a single active node. There are
// no parallel branches anywhere in this system; every condition node
// resolves to exactly one successor.
type Instance struct {
	graph   *Graph
	current *Node
	ctx     Context
	status  InstanceStatus
}

func NewInstance(g *Graph) (*Instance, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &Instance{
		graph:   g,
		current: g.StartNode(),
		ctx:     Context{},
		status:  InstanceRunning,
	}, nil
}

func (i *Instance) Current() *Node {
	return i.current
}

func (i *Instance) Status() InstanceStatus {
	return i.status
}

// Context returns a copy of the accumulated decision data.
func (i *Instance) Context() Context {
	out := make(Context, len(i.ctx))
	for k, v := range i.ctx {
		out[k] = v
	}
	return out
}

// Advance merges the decision data into the instance context and moves the
// active node forward. Condition nodes are pass-through: they resolve
// immediately, so the instance always rests on a start, approval or end
// node.
func (i *Instance) Advance(decision Context) (*Node, error) {
	if i.status == InstanceCompleted {
		return nil, ErrInstanceFinished
	}

	for k, v := range decision {
		i.ctx[k] = v
	}

	next, err := i.graph.next(i.current, i.ctx)
	if err != nil {
		return nil, err
	}
	for next.Type == NodeCondition {
		next, err = i.graph.next(next, i.ctx)
		if err != nil {
			return nil, err
		}
	}

	i.current = next
	if next.Type == NodeEnd {
		i.status = InstanceCompleted
	}
	return next, nil
}
