package utils

import (
	"github.com/emirpasic/gods/sets"
	"github.com/emirpasic/gods/sets/hashset"
)

func List2set[T any](list []T) sets.Set {
	set := hashset.New()
	for _, value := range list {
		set.Add(value)
	}
	return set
}

// Set2IntList converts a set of int values back into a slice. Used together
// with List2set to deduplicate handle lists before a batched lookup.
func Set2IntList(set sets.Set) []int {
	values := set.Values()
	answer := make([]int, 0, len(values))
	for _, v := range values {
		if i, ok := v.(int); ok {
			answer = append(answer, i)
		}
	}
	return answer
}
