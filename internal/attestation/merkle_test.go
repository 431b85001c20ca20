package attestation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "custodia/pkg/domain"
)

func buildLeaves(t *testing.T, batchID id.BatchID, n int) ([]id.ProductID, [][]byte) {
	t.Helper()
	pids := make([]id.ProductID, n)
	leaves := make([][]byte, n)
	for i := range pids {
		pids[i] = id.NewProductID()
		leaves[i] = LeafHash(pids[i], batchID)
	}
	return pids, leaves
}

func TestMerkleProofRoundTrip(t *testing.T) {
	batchID := id.NewBatchID()
	for _, n := range []int{1, 2, 3, 5, 8, 13} {
		pids, leaves := buildLeaves(t, batchID, n)
		tree := NewTree(leaves)
		for i, pid := range pids {
			proof := tree.ProofFor(i)
			assert.True(t, VerifyMembership(pid, batchID, proof),
				"member %d of %d must verify", i, n)
		}
	}
}

func TestMerkleProofRejectsWrongClaims(t *testing.T) {
	batchID := id.NewBatchID()
	pids, leaves := buildLeaves(t, batchID, 4)
	tree := NewTree(leaves)
	proof := tree.ProofFor(1)

	assert.False(t, VerifyMembership(id.NewProductID(), batchID, proof), "foreign product")
	assert.False(t, VerifyMembership(pids[1], id.NewBatchID(), proof), "foreign batch")
	assert.False(t, VerifyMembership(pids[2], batchID, proof), "wrong member for this path")

	tampered := proof
	tampered.Root = tree.Root()[:60] + "beef"
	assert.False(t, VerifyMembership(pids[1], batchID, tampered), "tampered root")
}

func TestMerkleProofRevealsOnlyHashes(t *testing.T) {
	batchID := id.NewBatchID()
	pids, leaves := buildLeaves(t, batchID, 6)
	tree := NewTree(leaves)
	proof := tree.ProofFor(0)

	require.NotEmpty(t, proof.Siblings)
	for _, sibling := range proof.Siblings {
		for _, pid := range pids {
			assert.NotContains(t, sibling, pid.String())
		}
	}
}

func TestLeafHashDomainSeparation(t *testing.T) {
	pid := id.NewProductID()
	batchID := id.NewBatchID()
	leaf := LeafHash(pid, batchID)
	assert.NotEqual(t, leaf, nodeHash(leaf[:16], leaf[16:]))
	assert.Equal(t, leaf, LeafHash(pid, batchID), "deterministic")
}
