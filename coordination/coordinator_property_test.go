package coordination

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/BaSui01/collabengine/types"
)

// randomDAG 只允许从低序号指向高序号的依赖，保证无环
func randomDAG(n int, edgeBits []bool) ComplexTask {
	task := ComplexTask{ID: "prop", RequiredAgents: []string{"a", "b"}}
	bit := 0
	for i := 0; i < n; i++ {
		st := Subtask{ID: fmt.Sprintf("s%02d", i), AssignedAgent: []string{"a", "b"}[i%2]}
		for j := 0; j < i; j++ {
			if bit < len(edgeBits) && edgeBits[bit] {
				st.Dependencies = append(st.Dependencies, fmt.Sprintf("s%02d", j))
			}
			bit++
		}
		task.Subtasks = append(task.Subtasks, st)
	}
	return task
}

func TestProperty_ExecutionSequenceIsTopological(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("every dependency runs before its dependent and each subtask appears once", prop.ForAll(
		func(n int, edgeBits []bool) bool {
			task := randomDAG(n, edgeBits)
			plan, err := NewCoordinator(nil).Coordinate(context.Background(), task)
			if err != nil {
				t.Logf("unexpected error: %v", err)
				return false
			}
			if len(plan.ExecutionSequence) != n {
				return false
			}
			pos := make(map[string]int, n)
			for i, id := range plan.ExecutionSequence {
				if _, dup := pos[id]; dup {
					return false
				}
				pos[id] = i
			}
			for _, st := range task.Subtasks {
				for _, d := range st.Dependencies {
					if pos[d] >= pos[st.ID] {
						return false
					}
				}
			}
			for _, s := range plan.Schedule {
				if s.Slack < 0 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 10),
		gen.SliceOfN(45, gen.Bool()),
	))

	properties.Property("adding a back edge is always reported as a cycle", prop.ForAll(
		func(n int, edgeBits []bool) bool {
			task := randomDAG(n, edgeBits)
			// 首尾相连形成环：s00 依赖最后一个，最后一个依赖 s00
			last := len(task.Subtasks) - 1
			task.Subtasks[last].Dependencies = append(task.Subtasks[last].Dependencies, "s00")
			task.Subtasks[0].Dependencies = append(task.Subtasks[0].Dependencies, task.Subtasks[last].ID)

			_, err := NewCoordinator(nil).Coordinate(context.Background(), task)
			return types.GetErrorCode(err) == types.ErrCyclicDependency
		},
		gen.IntRange(2, 10),
		gen.SliceOfN(45, gen.Bool()),
	))

	properties.TestingRun(t)
}
