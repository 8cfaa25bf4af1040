package services

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

const (
	evaluationFraction = 0.2
	splitSeed          = 42
)

// stratifiedSplit partitions row indices into training and evaluation sets,
// taking evaluationFraction of every class so both sides keep the label ratio.
// Indices are returned in ascending order; the same labels and seed always
// yield the same partition.
func stratifiedSplit(labels []int, testFraction float64, seed int64) (train, test []int, err error) {
	byClass := map[int][]int{}
	for i, y := range labels {
		byClass[y] = append(byClass[y], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	if len(classes) < 2 {
		return nil, nil, &DataError{Reason: "churn label must contain both classes (0 and 1)"}
	}

	rng := rand.New(rand.NewSource(seed))
	for _, c := range classes {
		members := append([]int(nil), byClass[c]...)
		if len(members) < 2 {
			return nil, nil, &DataError{Reason: fmt.Sprintf("churn class %d has %d row(s), need at least 2 per class", c, len(members))}
		}
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })

		nTest := int(math.Round(testFraction * float64(len(members))))
		if nTest < 1 {
			nTest = 1
		}
		if nTest > len(members)-1 {
			nTest = len(members) - 1
		}
		test = append(test, members[:nTest]...)
		train = append(train, members[nTest:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// selectRows picks rows of x and y by index.
func selectRows(x [][]float64, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for i, k := range idx {
		xs[i] = x[k]
		ys[i] = y[k]
	}
	return xs, ys
}

func churnRate(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	pos := 0
	for _, y := range labels {
		pos += y
	}
	return float64(pos) / float64(len(labels))
}
