package dto

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/models"
)

// GraphNode represents a node in the DAG.
type GraphNode interface {
	// GetNodeID returns the unique identifier for this node.
	GetNodeID() models.JobID
	// GetNodeDependencies returns the identifiers of the nodes this node depends on.
	GetNodeDependencies() []models.JobID
}

type dagVertex struct {
	node       GraphNode
	deps       []models.JobID
	dependents []models.JobID
}

// DAG represents a directed acyclic graph useful for expressing dependencies.
// Edges run from a node to each of its dependencies. A DAG is immutable once created.
type DAG struct {
	vertices map[models.JobID]*dagVertex
	// order lists every node, dependencies before dependents. Ties are broken by id so the
	// order is the same for the same set of nodes.
	order []models.JobID
}

// NewDAG creates a new DAG containing the specified nodes.
// Returns gerror.ErrUnresolvedDependency if a node depends on a node that isn't in the set, and
// gerror.ErrDependencyCycle if the dependencies contain a cycle.
func NewDAG(nodes []GraphNode) (*DAG, error) {
	m := &DAG{vertices: make(map[models.JobID]*dagVertex, len(nodes))}

	// First pass - add all vertices
	for _, node := range nodes {
		id := node.GetNodeID()
		if _, ok := m.vertices[id]; ok {
			return nil, gerror.NewErrValidationFailed(fmt.Sprintf("Job %q is declared more than once", id))
		}
		m.vertices[id] = &dagVertex{node: node}
	}

	// Second pass - add all edges
	var result *multierror.Error
	for _, id := range m.sortedIDs() {
		vertex := m.vertices[id]
		seen := make(map[models.JobID]bool)
		for _, dep := range vertex.node.GetNodeDependencies() {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			depVertex, ok := m.vertices[dep]
			if !ok {
				result = multierror.Append(result, gerror.NewErrUnresolvedDependency(id.String(), dep.String()))
				continue
			}
			vertex.deps = append(vertex.deps, dep)
			depVertex.dependents = append(depVertex.dependents, id)
		}
		sortJobIDs(vertex.deps)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	for _, vertex := range m.vertices {
		sortJobIDs(vertex.dependents)
	}

	if cycle := m.findCycle(); cycle != nil {
		return nil, gerror.NewErrDependencyCycle(cycle)
	}
	m.order = m.topologicalOrder()
	return m, nil
}

// Nodes returns every node, dependencies before dependents.
func (m *DAG) Nodes() []GraphNode {
	nodes := make([]GraphNode, len(m.order))
	for i, id := range m.order {
		nodes[i] = m.vertices[id].node
	}
	return nodes
}

// Ancestors returns all transitive dependencies of the specified node, dependencies first.
// Returns gerror.ErrNotFound if the node is not in the DAG.
func (m *DAG) Ancestors(of models.JobID) ([]GraphNode, error) {
	if _, ok := m.vertices[of]; !ok {
		return nil, gerror.NewErrNotFound(fmt.Sprintf("Job %q not found", of))
	}
	reachable := m.reachableFrom(of)
	var ancestors []GraphNode
	for _, id := range m.order {
		if id != of && reachable[id] {
			ancestors = append(ancestors, m.vertices[id].node)
		}
	}
	return ancestors, nil
}

// reachableFrom returns the set of nodes reachable from id by following dependencies, including id.
func (m *DAG) reachableFrom(id models.JobID) map[models.JobID]bool {
	reachable := map[models.JobID]bool{id: true}
	stack := []models.JobID{id}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range m.vertices[current].deps {
			if !reachable[dep] {
				reachable[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	return reachable
}

// findCycle returns the ids forming a dependency cycle (first id repeated at the end), or nil.
// Depth first search with three colours: unvisited, on the current path, and finished.
func (m *DAG) findCycle() []string {
	const (
		onPath   = 1
		finished = 2
	)
	var (
		state = make(map[models.JobID]int, len(m.vertices))
		path  []models.JobID
		cycle []string
	)
	var visit func(id models.JobID) bool
	visit = func(id models.JobID) bool {
		state[id] = onPath
		path = append(path, id)
		for _, dep := range m.vertices[id].deps {
			switch state[dep] {
			case onPath:
				start := 0
				for i, p := range path {
					if p == dep {
						start = i
						break
					}
				}
				for _, p := range path[start:] {
					cycle = append(cycle, p.String())
				}
				cycle = append(cycle, dep.String())
				return true
			case finished:
				continue
			}
			if visit(dep) {
				return true
			}
		}
		path = path[:len(path)-1]
		state[id] = finished
		return false
	}
	for _, id := range m.sortedIDs() {
		if state[id] == 0 && visit(id) {
			return cycle
		}
	}
	return nil
}

// topologicalOrder uses Kahn's algorithm, always taking the smallest ready id next.
func (m *DAG) topologicalOrder() []models.JobID {
	remaining := make(map[models.JobID]int, len(m.vertices))
	var ready []models.JobID
	for id, vertex := range m.vertices {
		remaining[id] = len(vertex.deps)
		if len(vertex.deps) == 0 {
			ready = append(ready, id)
		}
	}
	order := make([]models.JobID, 0, len(m.vertices))
	for len(ready) > 0 {
		sortJobIDs(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, dependent := range m.vertices[next].dependents {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}
	return order
}

func (m *DAG) sortedIDs() []models.JobID {
	ids := make([]models.JobID, 0, len(m.vertices))
	for id := range m.vertices {
		ids = append(ids, id)
	}
	sortJobIDs(ids)
	return ids
}

func sortJobIDs(ids []models.JobID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
