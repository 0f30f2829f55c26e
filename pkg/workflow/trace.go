package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

// ErrCycle is returned when a trace revisits a node.
var ErrCycle = errors.New("workflow contains a cycle")

// Trace walks the graph from the start node and returns the ids of the nodes
// a run would visit given vars. At an ifElse node the first branch whose When
// expression holds is taken; an empty When always holds. Other nodes follow
// their first outgoing connection. The walk stops at an end node or a node
// with no way out.
func (w *Workflow) Trace(vars map[string]interface{}) ([]string, error) {
	start := w.Start()
	if start == nil {
		return nil, errors.New("workflow has no start node")
	}
	if vars == nil {
		vars = map[string]interface{}{}
	}

	var path []string
	seen := make(map[string]bool)
	current := start
	for current != nil {
		if seen[current.ID] {
			return path, fmt.Errorf("%w at node %q", ErrCycle, current.ID)
		}
		seen[current.ID] = true
		path = append(path, current.ID)

		if current.Type == NodeEnd {
			return path, nil
		}

		next, err := w.nextNode(current, vars)
		if err != nil {
			return path, err
		}
		current = next
	}
	return path, nil
}

func (w *Workflow) nextNode(n *Node, vars map[string]interface{}) (*Node, error) {
	out := w.Outgoing(n.ID)
	if len(out) == 0 {
		return nil, nil
	}

	d, ok := n.Data.(IfElseData)
	if !ok {
		return w.Node(out[0].To)
	}

	for _, b := range d.Branches {
		taken, err := evalWhen(b.When, vars)
		if err != nil {
			return nil, fmt.Errorf("node %q branch %q: %w", n.ID, b.ID, err)
		}
		if !taken {
			continue
		}
		for _, c := range out {
			if c.FromPort == b.ID {
				return w.Node(c.To)
			}
		}
		return nil, fmt.Errorf("node %q: branch %q is not connected", n.ID, b.ID)
	}
	return nil, fmt.Errorf("node %q: no branch matched", n.ID)
}

func evalWhen(when string, vars map[string]interface{}) (bool, error) {
	when = strings.TrimSpace(when)
	if when == "" {
		return true, nil
	}
	program, err := expr.Compile(when, expr.Env(vars), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", when, err)
	}
	output, err := expr.Run(program, vars)
	if err != nil {
		return false, fmt.Errorf("eval condition %q: %w", when, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return bool (got %T)", when, output)
	}
	return result, nil
}
