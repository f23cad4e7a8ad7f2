// Package ring places chunk keys onto storage nodes with consistent
// hashing. The ring is a pure function of the node list passed in: it is
// rebuilt per placement decision and never cached, so a node flipping
// online or offline between calls can never produce stale placements.
package ring

import (
	"crypto/sha256"
	"math/big"
	"sort"

	"cloudrive/pkg/fault"
	"cloudrive/pkg/types"
)

type entry struct {
	hash *big.Int
	node types.StorageNode
}

// hashKey maps any key to a 256-bit ring position.
func hashKey(key string) *big.Int {
	sum := sha256.Sum256([]byte(key))
	return new(big.Int).SetBytes(sum[:])
}

// build sorts the given nodes into ring order by the hash of their ring key.
func build(nodes []types.StorageNode) []entry {
	ring := make([]entry, 0, len(nodes))
	for _, node := range nodes {
		ring = append(ring, entry{hash: hashKey(node.RingKey()), node: node})
	}
	sort.Slice(ring, func(i, j int) bool {
		return ring[i].hash.Cmp(ring[j].hash) < 0
	})
	return ring
}

// Select returns the replica set for key: up to replicas distinct nodes,
// walking clockwise from the first ring position at or after the key's
// hash. For a fixed node list the result is deterministic, and removing a
// node only remaps keys that mapped to or through its position.
func Select(nodes []types.StorageNode, key string, replicas int) ([]types.StorageNode, error) {
	if len(nodes) == 0 {
		return nil, fault.New(fault.Unavailable, "no online storage nodes available")
	}

	if len(nodes) <= replicas {
		// Fewer nodes than replicas wanted: use them all.
		selected := make([]types.StorageNode, len(nodes))
		copy(selected, nodes)
		return selected, nil
	}

	r := build(nodes)
	keyHash := hashKey(key)

	// First node whose position is at or past the key, wrapping to 0.
	start := sort.Search(len(r), func(i int) bool {
		return r[i].hash.Cmp(keyHash) >= 0
	})
	if start == len(r) {
		start = 0
	}

	selected := make([]types.StorageNode, 0, replicas)
	seen := make(map[types.NodeID]bool, replicas)
	for i := 0; i < len(r) && len(selected) < replicas; i++ {
		node := r[(start+i)%len(r)].node
		if seen[node.ID] {
			continue
		}
		seen[node.ID] = true
		selected = append(selected, node)
	}

	return selected, nil
}
