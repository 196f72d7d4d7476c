package flow

import "strings"

// maxWalkSteps bounds a single flow walk. Bounded loops stay well under it;
// hitting it means the graph cycles without a loop node.
const maxWalkSteps = 10000

// Step is one planned agent invocation.
type Step struct {
	AgentID    string
	Prompt     string
	Tools      []string
	Parameters *CallSettings
}

// Plan flattens the named flow into an ordered list of agent steps. The walk
// starts at the flow entry and follows edges in declaration order, taking
// the first edge whose condition holds. Decision, input, tool and merge
// nodes are structural; output nodes stop the walk. Loop nodes repeat their
// body until the per-node iteration counter reaches max_iterations, after
// which only an escape edge (no condition, or "else") may be taken. Subflow
// nodes inline the target flow's plan; parallel nodes are rejected because
// fan-out belongs to the concurrent orchestrator.
func Plan(doc *Document, flowID string, fctx *Context) ([]Step, error) {
	if fctx == nil {
		fctx = NewContext()
	}

	return planFlow(doc, flowID, fctx, nil)
}

func planFlow(doc *Document, flowID string, fctx *Context, visited []string) ([]Step, error) {
	for _, seen := range visited {
		if seen == flowID {
			return nil, &SubflowCycleError{Flow: flowID}
		}
	}
	visited = append(visited, flowID)

	f, err := doc.FlowByID(flowID)
	if err != nil {
		return nil, err
	}

	var steps []Step

	current := f.Entry
	counters := map[string]int{}

	for walked := 0; ; walked++ {
		if walked >= maxWalkSteps {
			return nil, &WalkLimitError{Flow: flowID}
		}

		node, err := f.nodeByID(current)
		if err != nil {
			return nil, err
		}

		switch node.Type {
		case NodeInput, NodeDecision, NodeTool, NodeMerge, NodeLoop:
			// structural

		case NodeAgent:
			steps = append(steps, Step{
				AgentID:    node.Agent,
				Prompt:     node.Prompt,
				Tools:      node.Tools,
				Parameters: node.Parameters,
			})

		case NodeSubflow:
			nested, err := planFlow(doc, node.Flow, fctx, visited)
			if err != nil {
				return nil, err
			}
			steps = append(steps, nested...)

		case NodeParallel:
			return nil, &UnsupportedNodeError{Node: node.ID}

		case NodeOutput:
			return steps, nil
		}

		next, ok, err := nextNode(f, node, fctx, counters)
		if err != nil {
			return nil, err
		}
		if !ok {
			return steps, nil
		}

		current = next
	}
}

// nextNode selects the outgoing edge to follow. The iteration counter of the
// node being left is exposed to conditions as "iteration"; leaving a loop
// node increments its counter.
func nextNode(f *FlowDef, node *Node, fctx *Context, counters map[string]int) (string, bool, error) {
	var outgoing []Edge
	for _, e := range f.Edges {
		if edgeSource(e.From) == node.ID {
			outgoing = append(outgoing, e)
		}
	}

	if len(outgoing) == 0 {
		return "", false, nil
	}

	iteration := counters[node.ID]
	exhausted := node.Type == NodeLoop && iteration >= node.MaxIterations

	selected := ""
	found := false
	for _, e := range outgoing {
		if exhausted && !isEscapeCondition(e.Condition) {
			continue
		}

		if evalCondition(e.Condition, fctx, iteration) {
			selected = e.To
			found = true
			break
		}
	}

	if !found {
		return "", false, &NoMatchingEdgeError{Node: node.ID}
	}

	if node.Type == NodeLoop {
		counters[node.ID]++
	}

	return selected, true, nil
}

// isEscapeCondition reports whether an edge may leave an exhausted loop.
func isEscapeCondition(condition string) bool {
	trimmed := strings.TrimSpace(condition)
	return trimmed == "" || strings.EqualFold(trimmed, "else")
}
