package attestation

import (
	"crypto/sha256"
	"encoding/hex"

	id "custodia/pkg/domain"
)

// Domain-separated hashing: leaves and interior nodes use distinct prefixes
// so a leaf can never be replayed as a node.
const (
	leafPrefix = 0x00
	nodePrefix = 0x01
)

// LeafHash binds one (product, batch) membership into a leaf.
func LeafHash(productID id.ProductID, batchID id.BatchID) []byte {
	h := sha256.New()
	h.Write([]byte{leafPrefix})
	h.Write([]byte(productID.String()))
	h.Write([]byte("|"))
	h.Write([]byte(batchID.String()))
	return h.Sum(nil)
}

func nodeHash(left, right []byte) []byte {
	h := sha256.New()
	h.Write([]byte{nodePrefix})
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// Proof is a Merkle membership path. Siblings expose only hashes, never the
// other members' identities or metadata.
type Proof struct {
	Index    int      `json:"index"`
	Siblings []string `json:"siblings"`
	Root     string   `json:"root"`
}

// Tree is a sha256 Merkle tree over an ordered leaf set. An odd node at any
// level is promoted unchanged.
type Tree struct {
	levels [][][]byte
}

// NewTree builds the tree; leaves must be non-empty.
func NewTree(leaves [][]byte) *Tree {
	level := make([][]byte, len(leaves))
	copy(level, leaves)
	levels := [][][]byte{level}
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, nodeHash(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}
	return &Tree{levels: levels}
}

// Root returns the hex-encoded tree root.
func (t *Tree) Root() string {
	top := t.levels[len(t.levels)-1]
	return hex.EncodeToString(top[0])
}

// ProofFor produces the membership path for the leaf at index.
func (t *Tree) ProofFor(index int) Proof {
	proof := Proof{Index: index, Root: t.Root()}
	pos := index
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := pos ^ 1
		if sibling < len(level) {
			proof.Siblings = append(proof.Siblings, hex.EncodeToString(level[sibling]))
		} else {
			// Odd node promoted; no sibling at this level.
			proof.Siblings = append(proof.Siblings, "")
		}
		pos /= 2
	}
	return proof
}

// VerifyProof recomputes the root from a leaf and its path.
func VerifyProof(leaf []byte, proof Proof) bool {
	current := leaf
	pos := proof.Index
	for _, sibling := range proof.Siblings {
		if sibling == "" {
			pos /= 2
			continue
		}
		sib, err := hex.DecodeString(sibling)
		if err != nil {
			return false
		}
		if pos%2 == 0 {
			current = nodeHash(current, sib)
		} else {
			current = nodeHash(sib, current)
		}
		pos /= 2
	}
	return hex.EncodeToString(current) == proof.Root
}
