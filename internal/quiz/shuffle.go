package quiz

import "math/rand/v2"

// ShuffleIndices returns a uniformly random permutation of [0, n).
// It is unseeded: two sessions never share an order by construction.
func ShuffleIndices(n int) []int {
	return shuffleWith(n, rand.IntN)
}

// shuffleWith runs Fisher-Yates with the supplied source of j in [0, i].
func shuffleWith(n int, intn func(int) int) []int {
	if n <= 0 {
		return []int{}
	}
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := intn(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}
