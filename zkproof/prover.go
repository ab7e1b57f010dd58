package zkproof

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/scs"
	"github.com/consensys/gnark/test/unsafekzg"
	"github.com/rs/zerolog"

	"github.com/veilprotocol/veil/merkle"
	"github.com/veilprotocol/veil/note"
)

// ErrProofInFlight is returned when a second proving run is requested for
// a note whose proof is still being generated. Proving twice for the same
// inputs is wasted CPU, not a correctness bug, so the engine refuses.
var ErrProofInFlight = errors.New("proof generation already in flight for this note")

// Proof is one single-use withdrawal proof with its public signals. If the
// withdrawal transaction fails, a new proof must be generated against the
// then-current root.
type Proof struct {
	ProofBytes    []byte
	Root          []byte
	NullifierHash []byte
	ExtDataHash   []byte
}

// Engine compiles the withdrawal circuit once and produces proofs. Proof
// generation is CPU/memory-heavy; callers run Prove off any interactive
// path.
type Engine struct {
	depth int
	ccs   constraint.ConstraintSystem
	pk    plonk.ProvingKey
	vk    plonk.VerifyingKey

	mu       sync.Mutex
	inFlight map[string]struct{}

	logger zerolog.Logger
}

// NewEngine compiles the circuit for the given accumulator depth and runs
// the PLONK setup.
//
// The KZG SRS comes from gnark's unsafe test generator; a production
// deployment loads the ceremony SRS instead.
func NewEngine(depth int, logger zerolog.Logger) (*Engine, error) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), scs.NewBuilder, newCircuit(depth))
	if err != nil {
		return nil, fmt.Errorf("failed to compile withdrawal circuit: %w", err)
	}

	srs, srsLagrange, err := unsafekzg.NewSRS(ccs)
	if err != nil {
		return nil, fmt.Errorf("failed to build SRS: %w", err)
	}

	pk, vk, err := plonk.Setup(ccs, srs, srsLagrange)
	if err != nil {
		return nil, fmt.Errorf("plonk setup failed: %w", err)
	}

	logger.Info().Int("depth", depth).Int("constraints", ccs.GetNbConstraints()).Msg("withdrawal circuit compiled")

	return &Engine{
		depth:    depth,
		ccs:      ccs,
		pk:       pk,
		vk:       vk,
		inFlight: make(map[string]struct{}),
		logger:   logger,
	}, nil
}

// Depth returns the accumulator depth the circuit was compiled for.
func (e *Engine) Depth() int { return e.depth }

// Prove generates a withdrawal proof binding n to path.Root and
// extDataHash.
//
// Before spending the proving cycle it re-derives the nullifier hash and
// commitment from the note and walks the Merkle path on the host: a
// malformed input fails here immediately instead of deep inside the
// solver.
func (e *Engine) Prove(n *note.Note, path *merkle.Proof, extDataHash []byte) (*Proof, error) {
	if len(path.PathElements) != e.depth {
		return nil, fmt.Errorf("path depth %d does not match circuit depth %d", len(path.PathElements), e.depth)
	}

	nullifierHash := n.NullifierHash()
	if !merkle.VerifyPath(path, n.Commitment()) {
		return nil, fmt.Errorf("note commitment is not the leaf of the supplied path")
	}

	key := hex.EncodeToString(nullifierHash)
	e.mu.Lock()
	if _, busy := e.inFlight[key]; busy {
		e.mu.Unlock()
		return nil, ErrProofInFlight
	}
	e.inFlight[key] = struct{}{}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.inFlight, key)
		e.mu.Unlock()
	}()

	assignment := newCircuit(e.depth)
	assignment.Root = path.Root
	assignment.NullifierHash = nullifierHash
	assignment.ExtDataHash = extDataHash
	assignment.Nullifier = n.Nullifier
	assignment.Secret = n.Secret
	for d := 0; d < e.depth; d++ {
		assignment.PathElements[d] = path.PathElements[d]
		assignment.PathIndices[d] = path.PathIndices[d]
	}

	wtn, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}

	proof, err := plonk.Prove(e.ccs, e.pk, wtn)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}

	buf := bytes.NewBuffer(nil)
	if _, err := proof.WriteTo(buf); err != nil {
		return nil, err
	}

	e.logger.Debug().Hex("nullifier_hash", nullifierHash).Msg("withdrawal proof generated")

	return &Proof{
		ProofBytes:    buf.Bytes(),
		Root:          path.Root,
		NullifierHash: nullifierHash,
		ExtDataHash:   extDataHash,
	}, nil
}
