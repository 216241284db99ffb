// Package sbt implements a Sequence Bloom Tree: a d-ary tree whose leaves hold
// signatures and whose internal nodes hold Bloom filters of every hash below
// them, so that searches can prune whole subtrees.
//
// A Tree is not safe for concurrent use.
package sbt

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	set "github.com/hashicorp/go-set/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pomerium/sketchkit/internal/log"
	"github.com/pomerium/sketchkit/pkg/blobstore"
	"github.com/pomerium/sketchkit/pkg/minhash"
	"github.com/pomerium/sketchkit/pkg/nodegraph"
	"github.com/pomerium/sketchkit/pkg/signature"
)

// DefaultCacheSize is the number of leaf signatures kept in memory by
// default.
const DefaultCacheSize = 1024

var (
	// ErrNoStorage is returned when a tree needs a storage but has none.
	ErrNoStorage = errors.New("sbt: no storage configured")
	// ErrEmptyTree is returned when saving a tree without leaves.
	ErrEmptyTree = errors.New("sbt: empty tree")
)

// Options configure a Tree.
type Options struct {
	// Storage is where nodes and leaves are saved and loaded from.
	Storage blobstore.Storage
	// CacheSize is the number of loaded leaf signatures kept in memory.
	// Zero disables the cache.
	CacheSize int
	// Compression is the gzip level used for leaf signatures.
	Compression int
}

// A Tree is a Sequence Bloom Tree.
type Tree struct {
	d       int
	factory Factory
	nodes   map[int]*Node
	leaves  map[int]*Leaf

	storage     blobstore.Storage
	compression int
	cache       *lru.Cache[string, *signature.Signature]
}

// New creates an empty tree with branching factor d.
func New(factory Factory, d int, opts Options) (*Tree, error) {
	if d < 2 {
		return nil, fmt.Errorf("sbt: branching factor must be at least 2, got %d", d)
	}
	if _, err := factory.NewGraph(); err != nil {
		return nil, fmt.Errorf("sbt: invalid factory: %w", err)
	}
	t := &Tree{
		d:           d,
		factory:     factory,
		nodes:       make(map[int]*Node),
		leaves:      make(map[int]*Leaf),
		storage:     opts.Storage,
		compression: opts.Compression,
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, *signature.Signature](opts.CacheSize)
		if err != nil {
			return nil, err
		}
		t.cache = cache
	}
	return t, nil
}

// D returns the branching factor.
func (t *Tree) D() int { return t.d }

// Factory returns the factory used for internal nodes.
func (t *Tree) Factory() Factory { return t.factory }

// Len returns the number of leaves.
func (t *Tree) Len() int { return len(t.leaves) }

// Leaves returns the leaves ordered by position.
func (t *Tree) Leaves() []*Leaf {
	out := make([]*Leaf, 0, len(t.leaves))
	for _, pos := range slices.Sorted(maps.Keys(t.leaves)) {
		out = append(out, t.leaves[pos])
	}
	return out
}

// Nodes returns the internal nodes ordered by position.
func (t *Tree) Nodes() []*Node {
	out := make([]*Node, 0, len(t.nodes))
	for _, pos := range slices.Sorted(maps.Keys(t.nodes)) {
		out = append(out, t.nodes[pos])
	}
	return out
}

func (t *Tree) parent(pos int) int {
	return (pos - 1) / t.d
}

func (t *Tree) children(pos int) []int {
	out := make([]int, t.d)
	for i := range out {
		out[i] = t.d*pos + i + 1
	}
	return out
}

func (t *Tree) nextPos() int {
	if len(t.nodes) == 0 && len(t.leaves) == 0 {
		return 0
	}
	pos := 0
	for p := range t.nodes {
		pos = max(pos, p)
	}
	for p := range t.leaves {
		pos = max(pos, p)
	}
	return pos + 1
}

// Add inserts a leaf into the tree. The leaf must have a sketch with the
// factory's ksize. Every ancestor of the new leaf is updated with its sketch.
func (t *Tree) Add(ctx context.Context, leaf *Leaf) error {
	if leaf.sig == nil {
		return fmt.Errorf("sbt: leaf %q has no signature", leaf.name)
	}
	if _, err := leaf.sig.Select(t.factory.Ksize); err != nil {
		return fmt.Errorf("sbt: add %q: %w", leaf.name, err)
	}

	pos := t.nextPos()
	if pos == 0 {
		root, err := newNode(t.factory, 0)
		if err != nil {
			return err
		}
		t.nodes[0] = root
		pos = 1
	}

	p := t.parent(pos)
	if old, ok := t.leaves[p]; ok {
		// the parent is a leaf: replace it with an internal node holding
		// both leaves
		oldData, err := t.leafSignature(ctx, old)
		if err != nil {
			return err
		}
		n, err := newNode(t.factory, p)
		if err != nil {
			return err
		}
		if err := old.withSignature(oldData).Update(n); err != nil {
			return err
		}
		if err := leaf.Update(n); err != nil {
			return err
		}
		c := t.children(p)
		delete(t.leaves, p)
		t.nodes[p] = n
		t.leaves[c[0]] = old
		t.leaves[c[1]] = leaf
	} else if n, ok := t.nodes[p]; ok {
		if _, err := t.graph(ctx, n); err != nil {
			return err
		}
		if err := leaf.Update(n); err != nil {
			return err
		}
		t.leaves[pos] = leaf
	} else {
		n, err := newNode(t.factory, p)
		if err != nil {
			return err
		}
		if err := leaf.Update(n); err != nil {
			return err
		}
		t.nodes[p] = n
		t.leaves[t.children(p)[0]] = leaf
	}

	for a := p; a > 0; {
		a = t.parent(a)
		n := t.nodes[a]
		if _, err := t.graph(ctx, n); err != nil {
			return err
		}
		if err := leaf.Update(n); err != nil {
			return err
		}
	}
	return nil
}

// Find walks the tree breadth first from the root and returns every leaf
// matching fn. Subtrees of internal nodes not matching fn are skipped. The
// returned leaves have their signature loaded.
func (t *Tree) Find(ctx context.Context, fn SearchFunc, query *minhash.MinHash, threshold float64) ([]*Leaf, error) {
	var matches []*Leaf
	if len(t.nodes) == 0 && len(t.leaves) == 0 {
		return matches, nil
	}

	visited := set.New[int](len(t.nodes) + len(t.leaves))
	queue := []int{0}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pos := queue[0]
		queue = queue[1:]
		if !visited.Insert(pos) {
			continue
		}

		if leaf, ok := t.leaves[pos]; ok {
			sig, err := t.leafSignature(ctx, leaf)
			if err != nil {
				return nil, err
			}
			loaded := leaf.withSignature(sig)
			ok, err := fn(loaded, query, threshold)
			if err != nil {
				return nil, fmt.Errorf("sbt: search %q: %w", leaf.name, err)
			}
			if ok {
				matches = append(matches, loaded)
			}
			continue
		}

		n, ok := t.nodes[pos]
		if !ok {
			continue
		}
		if _, err := t.graph(ctx, n); err != nil {
			return nil, err
		}
		ok, err := fn(n, query, threshold)
		if err != nil {
			return nil, fmt.Errorf("sbt: search %q: %w", n.name, err)
		}
		if !ok {
			continue
		}
		for _, c := range t.children(pos) {
			_, isNode := t.nodes[c]
			_, isLeaf := t.leaves[c]
			if isNode || isLeaf {
				queue = append(queue, c)
			}
		}
	}
	return matches, nil
}

// A Result is a signature found by Search.
type Result struct {
	Signature  *signature.Signature
	Similarity float64
}

// Search returns the signatures whose similarity with query is at least
// threshold, most similar first and then by name.
func Search(ctx context.Context, t *Tree, query *minhash.MinHash, threshold float64) ([]Result, error) {
	leaves, err := t.Find(ctx, SearchMinHashes, query, threshold)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(leaves))
	for _, leaf := range leaves {
		mh, err := leaf.sig.Select(query.Ksize())
		if err != nil {
			return nil, err
		}
		sim, err := mh.Similarity(query)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{Signature: leaf.sig, Similarity: sim})
	}
	slices.SortStableFunc(results, func(a, b Result) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.Signature.DisplayName(), b.Signature.DisplayName())
	})
	log.Debug(ctx).
		Int("leaves", len(t.leaves)).
		Int("results", len(results)).
		Float64("threshold", threshold).
		Msg("sbt: search complete")
	return results, nil
}

func (t *Tree) graph(ctx context.Context, n *Node) (*nodegraph.Nodegraph, error) {
	if n.graph != nil {
		return n.graph, nil
	}
	if t.storage == nil {
		return nil, ErrNoStorage
	}
	g, err := blobstore.Get(ctx, t.storage, n.path, nodegraph.Read)
	if err != nil {
		return nil, fmt.Errorf("sbt: load node %q: %w", n.name, err)
	}
	n.graph = g
	return g, nil
}

func (t *Tree) leafSignature(ctx context.Context, l *Leaf) (*signature.Signature, error) {
	if l.sig != nil {
		return l.sig, nil
	}
	if t.cache != nil {
		if sig, ok := t.cache.Get(l.path); ok {
			return sig, nil
		}
	}
	if t.storage == nil {
		return nil, ErrNoStorage
	}
	sig, err := blobstore.Get(ctx, t.storage, l.path, signature.LoadOne)
	if err != nil {
		return nil, fmt.Errorf("sbt: load leaf %q: %w", l.name, err)
	}
	if t.cache != nil {
		t.cache.Add(l.path, sig)
	}
	return sig, nil
}
