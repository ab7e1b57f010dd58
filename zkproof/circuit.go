// Package zkproof holds the withdrawal circuit and the proving engine
// binding a pool note to a recognized root, its nullifier hash and the
// hash of the external withdrawal parameters.
package zkproof

import (
	"github.com/consensys/gnark/frontend"
	std_mimc "github.com/consensys/gnark/std/hash/mimc"
)

// WithdrawCircuit proves, without revealing which leaf was spent:
//
//	NullifierHash == MiMC(Nullifier)
//	leaf          == MiMC(Nullifier, Secret)
//	Root          == fold(leaf, PathElements, PathIndices)
//
// ExtDataHash carries no constraint of its own; it is squared into the
// system so the verifier binds the proof to the exact external parameters
// (fee, destination chain, stealth recipient, bridge) it was built for.
type WithdrawCircuit struct {
	Root          frontend.Variable `gnark:",public"`
	NullifierHash frontend.Variable `gnark:",public"`
	ExtDataHash   frontend.Variable `gnark:",public"`

	Nullifier    frontend.Variable
	Secret       frontend.Variable
	PathElements []frontend.Variable
	PathIndices  []frontend.Variable // one bit per level, 1 = current node is a right child
}

func (c *WithdrawCircuit) Define(api frontend.API) error {
	hasher, err := std_mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	hasher.Reset()
	hasher.Write(c.Nullifier)
	api.AssertIsEqual(c.NullifierHash, hasher.Sum())

	hasher.Reset()
	hasher.Write(c.Nullifier, c.Secret)
	leaf := hasher.Sum()

	cur := leaf
	for d := 0; d < len(c.PathElements); d++ {
		api.AssertIsBoolean(c.PathIndices[d])
		left := api.Select(c.PathIndices[d], c.PathElements[d], cur)
		right := api.Select(c.PathIndices[d], cur, c.PathElements[d])

		hasher.Reset()
		hasher.Write(left, right)
		cur = hasher.Sum()
	}
	api.AssertIsEqual(c.Root, cur)

	// Keep ExtDataHash load-bearing in the constraint system so the
	// compiler cannot prune the public input.
	_ = api.Mul(c.ExtDataHash, c.ExtDataHash)

	return nil
}

func newCircuit(depth int) *WithdrawCircuit {
	return &WithdrawCircuit{
		PathElements: make([]frontend.Variable, depth),
		PathIndices:  make([]frontend.Variable, depth),
	}
}
