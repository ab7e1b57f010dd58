package zkproof

import (
	"bytes"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/frontend"

	"github.com/veilprotocol/veil/ledger"
)

// Verify checks a withdrawal proof against its public signals, the same
// check the on-chain verifier performs. A failure maps to
// ledger.ErrProofRejected so callers can tell it apart from a stale root.
func (e *Engine) Verify(p *Proof) error {
	proof := plonk.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewBuffer(p.ProofBytes)); err != nil {
		return fmt.Errorf("%w: malformed proof bytes: %v", ledger.ErrProofRejected, err)
	}

	assignment := newCircuit(e.depth)
	assignment.Root = p.Root
	assignment.NullifierHash = p.NullifierHash
	assignment.ExtDataHash = p.ExtDataHash

	pubWtn, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return err
	}

	if err := plonk.Verify(proof, e.vk, pubWtn); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrProofRejected, err)
	}
	return nil
}
