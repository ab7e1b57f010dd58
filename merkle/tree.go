// Package merkle mirrors the pool contract's fixed-depth incremental MiMC
// accumulator client-side and reconstructs inclusion paths for withdrawal
// proofs by replaying deposit events.
package merkle

import (
	"bytes"
	"fmt"

	"github.com/veilprotocol/veil/utils"
)

// DefaultDepth matches the deployed pool accumulator: 2^20 leaves.
const DefaultDepth = 20

// zeroLeafSeed seeds the empty-subtree chain. It must equal the constant
// baked into the pool contract or reconstructed roots never match.
const zeroLeafSeed = "veil.pool.zero"

// Proof is one inclusion path. Ephemeral: rebuilt per withdrawal, never
// persisted, stale as soon as the next deposit lands.
type Proof struct {
	Root         []byte
	PathElements [][]byte
	PathIndices  []int
}

// Tree is the client-side replica of the on-chain incremental tree:
// append-only fixed depth, empty slots padded with the zero-subtree chain.
type Tree struct {
	depth  int
	zeros  [][]byte
	leaves [][]byte
}

// NewTree builds an empty tree of the given depth.
func NewTree(depth int) (*Tree, error) {
	if depth < 1 || depth > 32 {
		return nil, fmt.Errorf("tree depth out of range: %d", depth)
	}
	zeros := make([][]byte, depth+1)
	zeros[0] = utils.MiMCHash([]byte(zeroLeafSeed))
	for i := 1; i <= depth; i++ {
		zeros[i] = utils.MiMCHash(zeros[i-1], zeros[i-1])
	}
	return &Tree{depth: depth, zeros: zeros}, nil
}

// Depth returns the fixed tree depth.
func (t *Tree) Depth() int { return t.depth }

// Size returns the number of inserted leaves.
func (t *Tree) Size() uint32 { return uint32(len(t.leaves)) }

// Insert appends a leaf and returns its index.
func (t *Tree) Insert(leaf []byte) (uint32, error) {
	if uint64(len(t.leaves)) >= uint64(1)<<t.depth {
		return 0, fmt.Errorf("tree is full: depth %d", t.depth)
	}
	cp := make([]byte, len(leaf))
	copy(cp, leaf)
	t.leaves = append(t.leaves, cp)
	return uint32(len(t.leaves) - 1), nil
}

// Root computes the current root over the inserted leaves with
// zero-subtree padding.
func (t *Tree) Root() []byte {
	level := t.leaves
	for d := 0; d < t.depth; d++ {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := t.zeros[d]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, utils.MiMCHash(left, right))
		}
		level = next
	}
	if len(level) == 0 {
		return t.zeros[t.depth]
	}
	return level[0]
}

// Path computes the sibling path for the leaf at index. PathIndices[d] is
// 0 when the path node at level d is a left child.
func (t *Tree) Path(index uint32) (*Proof, error) {
	if index >= t.Size() {
		return nil, fmt.Errorf("leaf index %d out of range (size %d)", index, t.Size())
	}

	proof := &Proof{
		PathElements: make([][]byte, t.depth),
		PathIndices:  make([]int, t.depth),
	}

	level := t.leaves
	idx := int(index)
	for d := 0; d < t.depth; d++ {
		sibling := t.zeros[d]
		if idx%2 == 0 {
			if idx+1 < len(level) {
				sibling = level[idx+1]
			}
			proof.PathIndices[d] = 0
		} else {
			sibling = level[idx-1]
			proof.PathIndices[d] = 1
		}
		proof.PathElements[d] = sibling

		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := t.zeros[d]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, utils.MiMCHash(left, right))
		}
		level = next
		idx /= 2
	}

	proof.Root = level[0]
	return proof, nil
}

// VerifyPath recomputes the path from leaf to root. Cheap host-side check
// run before spending a proving cycle on a doomed witness.
func VerifyPath(proof *Proof, leaf []byte) bool {
	if proof == nil || len(proof.PathElements) != len(proof.PathIndices) {
		return false
	}
	cur := leaf
	for d, sibling := range proof.PathElements {
		if proof.PathIndices[d] == 0 {
			cur = utils.MiMCHash(cur, sibling)
		} else {
			cur = utils.MiMCHash(sibling, cur)
		}
	}
	return bytes.Equal(cur, proof.Root)
}
