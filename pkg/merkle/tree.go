package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/cbergoon/merkletree"
)

// Content implements merkletree.Content for a CID.
type Content struct {
	cid string
}

// CalculateHash implements the Content interface
func (c Content) CalculateHash() ([]byte, error) {
	h := sha256.New()
	if _, err := h.Write([]byte(c.cid)); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// Equals implements the Content interface
func (c Content) Equals(other merkletree.Content) (bool, error) {
	otherContent, ok := other.(Content)
	if !ok {
		return false, fmt.Errorf("type mismatch")
	}
	return c.cid == otherContent.cid, nil
}

// Build builds a tree over cids. The input order does not matter; leaves are
// sorted so that a manifest always yields the same root.
func Build(cids []string) (*merkletree.MerkleTree, error) {
	if len(cids) == 0 {
		return nil, fmt.Errorf("cannot build tree from empty CID list")
	}

	sorted := append([]string(nil), cids...)
	sort.Strings(sorted)

	contents := make([]merkletree.Content, 0, len(sorted))
	for _, cid := range sorted {
		contents = append(contents, Content{cid: cid})
	}

	tree, err := merkletree.NewTree(contents)
	if err != nil {
		return nil, fmt.Errorf("failed to build Merkle tree: %w", err)
	}
	return tree, nil
}

// Root returns the hex encoded Merkle root over cids.
func Root(cids []string) (string, error) {
	tree, err := Build(cids)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(tree.MerkleRoot()), nil
}

// Verify checks that cids produce the expected hex root.
func Verify(cids []string, expectedRoot string) error {
	tree, err := Build(cids)
	if err != nil {
		return fmt.Errorf("failed to build tree for verification: %w", err)
	}

	valid, err := tree.VerifyTree()
	if err != nil {
		return fmt.Errorf("tree verification failed: %w", err)
	}
	if !valid {
		return fmt.Errorf("tree structure is invalid")
	}

	want, err := hex.DecodeString(expectedRoot)
	if err != nil {
		return fmt.Errorf("decode expected root: %w", err)
	}
	if actual := tree.MerkleRoot(); !bytes.Equal(actual, want) {
		return fmt.Errorf("merkle root mismatch: expected %x, got %x", want, actual)
	}
	return nil
}
