package pipeline

import "fmt"

// Job is one (component, distribution) or template unit of work
// scheduled for a stage.
type Job struct {
	ID   string
	Deps []string // other Job IDs that must complete first
}

// TopoSort orders jobs so every dependency runs before its dependents,
// detecting cycles as a configuration error at pipeline-construction
// time rather than a deadlock at run time. This is a fresh
// implementation rather than a reuse of the teacher's own graph.go:
// that file pulls in github.com/pmengelbert/stack and
// k8s.io/apimachinery/pkg/util/sets for its LLB build-dependency SCC
// analysis, neither of which this module's dependency set carries,
// and a plain DFS-based sort needs no extra dependency for the much
// smaller per-stage job graphs this pipeline schedules.
func TopoSort(jobs []Job) ([]Job, error) {
	byID := make(map[string]Job, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(jobs))
	var order []Job

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("pipeline: cyclic job dependency: %s -> %s", joinPath(path), id)
		}
		j, ok := byID[id]
		if !ok {
			return fmt.Errorf("pipeline: job %q depends on unknown job %q", path[len(path)-1], id)
		}
		color[id] = gray
		for _, dep := range j.Deps {
			if err := visit(dep, append(path, id)); err != nil {
				return err
			}
		}
		color[id] = black
		order = append(order, j)
		return nil
	}

	for _, j := range jobs {
		if err := visit(j.ID, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += " -> "
		}
		out += p
	}
	return out
}
