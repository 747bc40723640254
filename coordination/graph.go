package coordination

import (
	"strings"

	"github.com/BaSui01/collabengine/types"
)

// graph 子任务依赖图，边方向为 依赖 -> 依赖方
type graph struct {
	ids   []string
	index map[string]int
	deps  map[string][]string // 已知依赖，保持声明顺序
	succ  map[string][]string
}

func buildGraph(subtasks []Subtask) *graph {
	g := &graph{
		index: make(map[string]int, len(subtasks)),
		deps:  make(map[string][]string, len(subtasks)),
		succ:  make(map[string][]string, len(subtasks)),
	}
	for i, st := range subtasks {
		if _, dup := g.index[st.ID]; dup {
			continue
		}
		g.index[st.ID] = i
		g.ids = append(g.ids, st.ID)
	}
	for i, st := range subtasks {
		if g.index[st.ID] != i {
			continue
		}
		seen := make(map[string]bool, len(st.Dependencies))
		for _, d := range st.Dependencies {
			if _, ok := g.index[d]; !ok || seen[d] {
				continue
			}
			seen[d] = true
			g.deps[st.ID] = append(g.deps[st.ID], d)
			g.succ[d] = append(g.succ[d], st.ID)
		}
	}
	return g
}

// findCycle 以声明顺序做 DFS，返回第一个环（首尾相同），无环返回 nil
func (g *graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(g.ids))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		stack = append(stack, id)
		for _, d := range g.deps[id] {
			switch color[d] {
			case gray:
				start := 0
				for i, s := range stack {
					if s == d {
						start = i
						break
					}
				}
				cycle := append([]string(nil), stack[start:]...)
				return append(cycle, d)
			case white:
				if c := visit(d); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, id := range g.ids {
		if color[id] == white {
			if c := visit(id); c != nil {
				return c
			}
		}
	}
	return nil
}

// cycleError 构造包含环上子任务 ID 的错误
func cycleError(cycle []string) error {
	path := strings.Join(cycle, " -> ")
	return types.Errorf(types.ErrCyclicDependency, "cyclic dependency: %s", path).
		WithDetail("cycle", path)
}

// topoOrder Kahn 算法，就绪节点按声明顺序出队
func (g *graph) topoOrder() []string {
	indegree := make(map[string]int, len(g.ids))
	for _, id := range g.ids {
		indegree[id] = len(g.deps[id])
	}
	emitted := make(map[string]bool, len(g.ids))
	order := make([]string, 0, len(g.ids))
	for len(order) < len(g.ids) {
		next := ""
		for _, id := range g.ids {
			if !emitted[id] && indegree[id] == 0 {
				next = id
				break
			}
		}
		if next == "" {
			// 有环，调用方已提前拦截
			break
		}
		emitted[next] = true
		order = append(order, next)
		for _, s := range g.succ[next] {
			indegree[s]--
		}
	}
	return order
}
