package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func branchingWorkflow(t *testing.T) *Workflow {
	t.Helper()
	w := New("branching", "", testNow)
	add := func(n Node) {
		_, err := w.AddNode(n)
		require.NoError(t, err)
	}
	connect := func(from, to, port string) {
		_, err := w.Connect(from, to, port)
		require.NoError(t, err)
	}

	add(Node{ID: "gate", Name: "Gate", Data: IfElseData{Branches: []Branch{
		{ID: "many", Label: "Many", When: "count > 10"},
		{ID: "east", Label: "East", When: `region == "us-east-1"`},
		{ID: "else", Label: "Otherwise"},
	}}})
	add(Node{ID: "bulk", Data: PromptData{Prompt: "bulk"}})
	add(Node{ID: "local", Data: PromptData{Prompt: "local"}})
	add(Node{ID: "fallback", Data: PromptData{Prompt: "fallback"}})

	connect("start", "gate", "")
	connect("gate", "bulk", "many")
	connect("gate", "local", "east")
	connect("gate", "fallback", "else")
	connect("bulk", "end", "")
	connect("local", "end", "")
	connect("fallback", "end", "")
	return w
}

func TestTrace(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]interface{}
		want []string
	}{
		{name: "first branch", vars: map[string]interface{}{"count": 20, "region": "us-east-1"}, want: []string{"start", "gate", "bulk", "end"}},
		{name: "second branch", vars: map[string]interface{}{"count": 1, "region": "us-east-1"}, want: []string{"start", "gate", "local", "end"}},
		{name: "fallback", vars: map[string]interface{}{"count": 1, "region": "eu-west-1"}, want: []string{"start", "gate", "fallback", "end"}},
	}
	w := branchingWorkflow(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := w.Trace(tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, path)
		})
	}
}

func TestTrace_UnknownVariable(t *testing.T) {
	w := branchingWorkflow(t)
	_, err := w.Trace(map[string]interface{}{"region": "us-east-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `branch "many"`)
}

func TestTrace_Linear(t *testing.T) {
	w := sampleWorkflow(t)
	path, err := w.Trace(nil)
	require.NoError(t, err)
	require.Len(t, path, 4)
	assert.Equal(t, "start", path[0])
	assert.Equal(t, "end", path[3])
}

func TestTrace_StopsAtDeadEnd(t *testing.T) {
	w := New("dead-end", "", testNow)
	_, err := w.AddNode(Node{ID: "p", Data: PromptData{Prompt: "x"}})
	require.NoError(t, err)
	_, err = w.Connect("start", "p", "")
	require.NoError(t, err)

	path, err := w.Trace(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "p"}, path)
}

func TestTrace_DetectsCycle(t *testing.T) {
	w := New("loop", "", testNow)
	for _, id := range []string{"a", "b"} {
		_, err := w.AddNode(Node{ID: id, Data: PromptData{Prompt: id}})
		require.NoError(t, err)
	}
	for _, c := range [][2]string{{"start", "a"}, {"a", "b"}, {"b", "a"}} {
		_, err := w.Connect(c[0], c[1], "")
		require.NoError(t, err)
	}

	path, err := w.Trace(nil)
	assert.ErrorIs(t, err, ErrCycle)
	assert.Equal(t, []string{"start", "a", "b"}, path)
}

func TestTrace_UnconnectedBranch(t *testing.T) {
	w := New("unconnected", "", testNow)
	_, err := w.AddNode(Node{ID: "gate", Data: IfElseData{Branches: []Branch{{ID: "a"}, {ID: "b"}}}})
	require.NoError(t, err)
	_, err = w.Connect("start", "gate", "")
	require.NoError(t, err)
	_, err = w.Connect("gate", "end", "b")
	require.NoError(t, err)

	_, err = w.Trace(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}
