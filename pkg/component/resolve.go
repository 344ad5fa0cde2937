package component

import (
	"errors"
	"fmt"
	"sort"

	"github.com/AetheriusMC/aetherius/pkg/types"
)

var (
	ErrCircularDependency = errors.New("circular component dependency")
	ErrUnknownDependency  = errors.New("unknown component dependency")
)

// Resolve orders components so every hard dependency precedes its
// dependents. Kahn's algorithm over the hard-dependency graph; among
// ready components, (LoadOrder, Name) ascending decides, so the result
// does not depend on directory enumeration order. A cycle rejects the
// whole set.
func Resolve(infos []*types.ComponentInfo) ([]*types.ComponentInfo, error) {
	byName := make(map[string]*types.ComponentInfo, len(infos))
	for _, info := range infos {
		byName[info.Name] = info
	}

	indegree := make(map[string]int, len(infos))
	dependents := make(map[string][]string)
	for _, info := range infos {
		indegree[info.Name] += 0
		for _, dep := range info.Dependencies {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("%w: %s requires %s", ErrUnknownDependency, info.Name, dep)
			}
			indegree[info.Name]++
			dependents[dep] = append(dependents[dep], info.Name)
		}
	}

	var ready []*types.ComponentInfo
	for _, info := range infos {
		if indegree[info.Name] == 0 {
			ready = append(ready, info)
		}
	}

	ordered := make([]*types.ComponentInfo, 0, len(infos))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			if ready[i].LoadOrder != ready[j].LoadOrder {
				return ready[i].LoadOrder < ready[j].LoadOrder
			}
			return ready[i].Name < ready[j].Name
		})
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, next)

		for _, dep := range dependents[next.Name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, byName[dep])
			}
		}
	}

	if len(ordered) != len(infos) {
		var stuck []string
		for name, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: involving %v", ErrCircularDependency, stuck)
	}
	return ordered, nil
}
