// Package snapshot captures the result of one scan in a serializable form.
//
// A snapshot records the fingerprint, size and modification time of every
// hashed file relative to the scan root, the directories that were empty,
// and a Merkle root over the sorted (path, fingerprint) pairs. Two scans of
// an unmodified tree produce the same Merkle root.
package snapshot

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	mt "github.com/txaty/go-merkletree"

	"tidy-go/internal/dedup"
	"tidy-go/internal/dirtree"
	"tidy-go/internal/hash"
)

const generator = "tidy-go"

type FileData struct {
	Fingerprint hash.Fingerprint `json:"fingerprint"`
	Size        int64            `json:"size"`
	ModTime     time.Time        `json:"mtime"`
}

type Snapshot struct {
	ID               string              `json:"id"`
	Generator        string              `json:"generator"`
	Created          time.Time           `json:"created"`
	Root             string              `json:"root"`
	Algorithm        hash.Algorithm      `json:"algorithm"`
	MerkleRoot       string              `json:"merkle_root"`
	TotalSize        int64               `json:"total_size"`
	Files            map[string]FileData `json:"files"`
	EmptyDirectories []string            `json:"empty_directories"`
}

// New builds a snapshot from a tree and its content grouping. File paths
// are stored relative to tree.Root.
func New(tree *dirtree.DirTree, result *dedup.Result) (*Snapshot, error) {
	snap := &Snapshot{
		ID:               uuid.NewString(),
		Generator:        generator,
		Created:          time.Now().UTC(),
		Root:             tree.Root,
		Algorithm:        result.Algorithm,
		Files:            make(map[string]FileData, result.FileCount()),
		EmptyDirectories: make([]string, 0),
	}

	for path, fp := range result.Fingerprints() {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat file: %w", err)
		}
		rel, err := relative(tree.Root, path)
		if err != nil {
			return nil, err
		}
		snap.Files[rel] = FileData{
			Fingerprint: fp,
			Size:        info.Size(),
			ModTime:     info.ModTime().UTC(),
		}
		snap.TotalSize += info.Size()
	}

	for _, path := range tree.EmptyDirectories() {
		rel, err := relative(tree.Root, path)
		if err != nil {
			return nil, err
		}
		snap.EmptyDirectories = append(snap.EmptyDirectories, rel)
	}
	sort.Strings(snap.EmptyDirectories)

	root, err := MerkleRoot(snap.Files)
	if err != nil {
		return nil, err
	}
	snap.MerkleRoot = root

	return snap, nil
}

// AbsPath resolves a snapshot-relative path against the snapshot root.
func (s *Snapshot) AbsPath(rel string) string {
	if rel == "." {
		return s.Root
	}
	return filepath.Join(s.Root, filepath.FromSlash(rel))
}

func relative(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("failed to relativize %s: %w", path, err)
	}
	return filepath.ToSlash(rel), nil
}

// leaf is one (path, fingerprint) pair fed to the Merkle tree.
type leaf struct {
	path        string
	fingerprint hash.Fingerprint
}

func (l leaf) Serialize() ([]byte, error) {
	data := make([]byte, 0, len(l.path)+1+hash.Size)
	data = append(data, l.path...)
	data = append(data, 0)
	data = append(data, l.fingerprint[:]...)
	return data, nil
}

// MerkleRoot computes the hex Merkle root over files sorted by path.
// Following the classic algorithm:
// 1. Sort files alphabetically by path
// 2. Create leaf nodes (hash each path and fingerprint)
// 3. Pair adjacent nodes and hash them to create parent level
// 4. Repeat until single root hash
func MerkleRoot(files map[string]FileData) (string, error) {
	// Handle empty files case
	if len(files) == 0 {
		rootHash, err := hash.XXHashFunc([]byte("empty-tree"))
		if err != nil {
			return "", fmt.Errorf("failed to create empty tree hash: %w", err)
		}
		return hex.EncodeToString(rootHash), nil
	}

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	blocks := make([]mt.DataBlock, 0, len(paths))
	for _, path := range paths {
		blocks = append(blocks, leaf{path: path, fingerprint: files[path].Fingerprint})
	}

	// go-merkletree needs at least two leaves; a single leaf is its own root
	if len(blocks) == 1 {
		data, _ := blocks[0].Serialize()
		rootHash, err := hash.XXHashFunc(data)
		if err != nil {
			return "", fmt.Errorf("failed to hash leaf: %w", err)
		}
		return hex.EncodeToString(rootHash), nil
	}

	tree, err := mt.New(&mt.Config{
		HashFunc: hash.XXHashFunc,
		Mode:     mt.ModeTreeBuild,
	}, blocks)
	if err != nil {
		return "", fmt.Errorf("failed to build merkle tree: %w", err)
	}

	return hex.EncodeToString(tree.Root), nil
}
