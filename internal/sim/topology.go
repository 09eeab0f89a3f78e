package sim

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/1ureka/netlayer/internal/protocol"
)

var (
	ErrUnknownTopology = errors.New("unknown topology")
	ErrDisconnected    = errors.New("no connected random topology found")
)

// maxRedraws bounds the attempts at drawing a connected random graph.
const maxRedraws = 1000

// Edge is an undirected link between two hosts.
type Edge struct{ A, B protocol.Address }

// Topology builds the edge list of the named topology over hosts 0..n-1.
// The random topology includes each edge with probability p and is
// re-drawn until connected.
func Topology(kind string, n int, p float64, rng *rand.Rand) ([]Edge, error) {
	var edges []Edge
	add := func(a, b int) { edges = append(edges, Edge{protocol.Address(a), protocol.Address(b)}) }

	switch kind {
	case "line":
		for i := 0; i+1 < n; i++ {
			add(i, i+1)
		}
	case "ring":
		for i := 0; i+1 < n; i++ {
			add(i, i+1)
		}
		if n > 2 {
			add(n-1, 0)
		}
	case "star":
		for i := 1; i < n; i++ {
			add(0, i)
		}
	case "full":
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				add(i, j)
			}
		}
	case "random":
		for range maxRedraws {
			edges = edges[:0]
			for i := 0; i < n; i++ {
				for j := i + 1; j < n; j++ {
					if rng.Float64() < p {
						add(i, j)
					}
				}
			}
			if connected(n, edges) {
				return edges, nil
			}
		}
		return nil, fmt.Errorf("%w: %d hosts, p=%.3f", ErrDisconnected, n, p)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownTopology, kind)
	}
	return edges, nil
}

// connected reports whether edges span all n hosts.
func connected(n int, edges []Edge) bool {
	if n == 0 {
		return true
	}

	adj := make([][]int, n)
	for _, e := range edges {
		adj[e.A] = append(adj[e.A], int(e.B))
		adj[e.B] = append(adj[e.B], int(e.A))
	}

	seen := make([]bool, n)
	stack := []int{0}
	seen[0] = true
	visited := 1
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, w := range adj[v] {
			if !seen[w] {
				seen[w] = true
				visited++
				stack = append(stack, w)
			}
		}
	}
	return visited == n
}
