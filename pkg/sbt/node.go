package sbt

import (
	"fmt"

	"github.com/pomerium/sketchkit/pkg/capability"
	"github.com/pomerium/sketchkit/pkg/minhash"
	"github.com/pomerium/sketchkit/pkg/nodegraph"
	"github.com/pomerium/sketchkit/pkg/signature"
)

// Factory describes the Bloom filters created for internal nodes.
type Factory struct {
	Ksize     uint32 `json:"ksize"`
	TableSize uint64 `json:"table_size"`
	NTables   int    `json:"n_tables"`
}

// NewGraph creates an empty graph.
func (f Factory) NewGraph() (*nodegraph.Nodegraph, error) {
	return nodegraph.New(f.Ksize, f.TableSize, f.NTables)
}

// A TreeNode is either a *Node or a *Leaf.
type TreeNode interface {
	Name() string
	Path() string
}

// A Node is an internal tree node. Its graph holds every hash found in the
// leaves below it.
type Node struct {
	name      string
	path      string
	minNBelow int
	graph     *nodegraph.Nodegraph
}

func newNode(f Factory, pos int) (*Node, error) {
	g, err := f.NewGraph()
	if err != nil {
		return nil, err
	}
	return &Node{name: fmt.Sprintf("internal.%d", pos), graph: g}, nil
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Path returns the storage path of the node's graph, empty until saved.
func (n *Node) Path() string { return n.path }

// MinNBelow returns the size of the smallest sketch below the node.
func (n *Node) MinNBelow() int { return n.minNBelow }

// Graph returns the node's graph, or nil if it was not loaded yet.
func (n *Node) Graph() *nodegraph.Nodegraph { return n.graph }

// A Leaf holds one signature.
type Leaf struct {
	name string
	path string
	sig  *signature.Signature
}

// NewLeaf creates a leaf for sig.
func NewLeaf(sig *signature.Signature) *Leaf {
	return &Leaf{name: sig.DisplayName(), sig: sig}
}

// Name returns the leaf name.
func (l *Leaf) Name() string { return l.name }

// Path returns the storage path of the leaf's signature, empty until saved.
func (l *Leaf) Path() string { return l.path }

// Signature returns the leaf's signature, or nil if it is not in memory.
func (l *Leaf) Signature() *signature.Signature { return l.sig }

func (l *Leaf) withSignature(sig *signature.Signature) *Leaf {
	c := *l
	c.sig = sig
	return &c
}

// Update inserts the leaf's sketch into target's graph and lowers target's
// MinNBelow to the sketch size, never below one. The sketch is the one whose
// ksize matches the graph.
func (l *Leaf) Update(target *Node) error {
	const op = "sbt.Leaf.Update"
	if target == nil || target.graph == nil {
		return capability.Updatef(op, "target node has no graph")
	}
	if l.sig == nil {
		return capability.Updatef(op, "leaf %q has no signature loaded", l.name)
	}
	mh, err := l.sig.Select(target.graph.Ksize())
	if err != nil {
		return capability.UpdateError(op, err)
	}
	if err := nodegraph.MinHashUpdater(mh).Update(target.graph); err != nil {
		return err
	}

	n := mh.Len()
	if target.minNBelow != 0 {
		n = min(n, target.minNBelow)
	}
	target.minNBelow = max(n, 1)
	return nil
}

// SearchFunc decides whether a node matches query. Returning false for an
// internal node prunes its subtree.
type SearchFunc func(n TreeNode, query *minhash.MinHash, threshold float64) (bool, error)

// SearchMinHashes scores leaves by Jaccard similarity and internal nodes by
// the fraction of query hashes found in their graph.
func SearchMinHashes(n TreeNode, query *minhash.MinHash, threshold float64) (bool, error) {
	var score float64
	switch n := n.(type) {
	case *Leaf:
		mh, err := n.sig.Select(query.Ksize())
		if err != nil {
			return false, err
		}
		score, err = mh.Similarity(query)
		if err != nil {
			return false, err
		}
	case *Node:
		if query.Len() == 0 {
			return false, nil
		}
		score = float64(n.graph.Matches(query)) / float64(query.Len())
	default:
		return false, fmt.Errorf("sbt: unexpected node type %T", n)
	}
	return score >= threshold, nil
}

var _ capability.Updater[*Node] = (*Leaf)(nil)
