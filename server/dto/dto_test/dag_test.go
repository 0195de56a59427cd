package dto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/dto"
)

type testNode struct {
	id   models.JobID
	deps []models.JobID
}

func (n *testNode) GetNodeID() models.JobID {
	return n.id
}

func (n *testNode) GetNodeDependencies() []models.JobID {
	return n.deps
}

func node(id models.JobID, deps ...models.JobID) dto.GraphNode {
	return &testNode{id: id, deps: deps}
}

func ids(nodes []dto.GraphNode) []models.JobID {
	var result []models.JobID
	for _, n := range nodes {
		result = append(result, n.GetNodeID())
	}
	return result
}

func diamond() []dto.GraphNode {
	return []dto.GraphNode{
		node("e"),
		node("d", "c", "b"),
		node("c", "a"),
		node("b", "a"),
		node("a"),
	}
}

func TestDAGOrderIsDeterministic(t *testing.T) {
	dag, err := dto.NewDAG(diamond())
	require.NoError(t, err)
	require.Len(t, dag.Nodes(), 5)
	require.Equal(t, []models.JobID{"a", "b", "c", "d", "e"}, ids(dag.Nodes()))

	// Input order must not affect the result
	reversed := diamond()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	dag2, err := dto.NewDAG(reversed)
	require.NoError(t, err)
	require.Equal(t, ids(dag.Nodes()), ids(dag2.Nodes()))
}

func TestDAGAncestors(t *testing.T) {
	dag, err := dto.NewDAG(diamond())
	require.NoError(t, err)

	ancestors, err := dag.Ancestors("d")
	require.NoError(t, err)
	require.Equal(t, []models.JobID{"a", "b", "c"}, ids(ancestors))

	ancestors, err = dag.Ancestors("a")
	require.NoError(t, err)
	require.Empty(t, ancestors)

	ancestors, err = dag.Ancestors("c")
	require.NoError(t, err)
	require.Equal(t, []models.JobID{"a"}, ids(ancestors))

	_, err = dag.Ancestors("missing")
	require.True(t, gerror.IsNotFound(err))
}

func TestDAGUnresolvedDependency(t *testing.T) {
	_, err := dto.NewDAG([]dto.GraphNode{
		node("a"),
		node("b", "a", "external.compile"),
	})
	require.Error(t, err)
	require.True(t, gerror.IsUnresolvedDependency(err))
	require.Contains(t, err.Error(), "external.compile")
}

func TestDAGCycle(t *testing.T) {
	_, err := dto.NewDAG([]dto.GraphNode{
		node("a", "c"),
		node("b", "a"),
		node("c", "b"),
		node("d"),
	})
	require.Error(t, err)
	require.True(t, gerror.IsDependencyCycle(err))
	require.Contains(t, err.Error(), "a -> c -> b -> a")
}

func TestDAGDuplicateNode(t *testing.T) {
	_, err := dto.NewDAG([]dto.GraphNode{node("a"), node("a")})
	require.True(t, gerror.IsValidationFailed(err))
}
