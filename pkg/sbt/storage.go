package sbt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/pomerium/sketchkit/internal/log"
	"github.com/pomerium/sketchkit/pkg/blobstore"
	"github.com/pomerium/sketchkit/pkg/capability"
	"github.com/pomerium/sketchkit/pkg/signature"
)

// ManifestVersion is the version of the manifest written by ToWriter.
const ManifestVersion = 1

const manifestSuffix = ".sbt.json"

type manifest struct {
	Version int                  `json:"version"`
	D       int                  `json:"d"`
	Factory Factory              `json:"factory"`
	Nodes   map[int]nodeManifest `json:"nodes"`
	Leaves  map[int]leafManifest `json:"leaves"`
}

type nodeManifest struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	MinNBelow int    `json:"min_n_below"`
}

type leafManifest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ManifestPath returns the path of the manifest for a tree saved as name.
func ManifestPath(name string) string {
	return name + manifestSuffix
}

// ToWriter writes the tree manifest as JSON. Every node and leaf must have
// been saved.
func (t *Tree) ToWriter(w io.Writer) error {
	const op = "sbt.Tree.ToWriter"
	m := manifest{
		Version: ManifestVersion,
		D:       t.d,
		Factory: t.factory,
		Nodes:   make(map[int]nodeManifest, len(t.nodes)),
		Leaves:  make(map[int]leafManifest, len(t.leaves)),
	}
	for pos, n := range t.nodes {
		if n.path == "" {
			return capability.Representationf(op, "node %q at %d was not saved", n.name, pos)
		}
		m.Nodes[pos] = nodeManifest{Name: n.name, Path: n.path, MinNBelow: n.minNBelow}
	}
	for pos, l := range t.leaves {
		if l.path == "" {
			return capability.Representationf(op, "leaf %q at %d was not saved", l.name, pos)
		}
		m.Leaves[pos] = leafManifest{Name: l.name, Path: l.path}
	}

	data, err := json.Marshal(m)
	if err != nil {
		return capability.RepresentationError(op, err)
	}
	_, err = capability.NewSink(w, op).Write(data)
	return err
}

// Save stores every node graph and leaf signature in the tree's storage,
// then the manifest at ManifestPath(name). The manifest is not written if
// any node or leaf failed; all failures are returned together.
func (t *Tree) Save(ctx context.Context, name string) (string, error) {
	if t.storage == nil {
		return "", ErrNoStorage
	}
	if len(t.leaves) == 0 {
		return "", ErrEmptyTree
	}

	dir := ".sbt." + name
	var result *multierror.Error
	for _, pos := range slices.Sorted(maps.Keys(t.nodes)) {
		n := t.nodes[pos]
		g, err := t.graph(ctx, n)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		p, err := blobstore.Put(ctx, t.storage, fmt.Sprintf("%s/%s", dir, n.name), g)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("sbt: save node %q: %w", n.name, err))
			continue
		}
		n.path = p
	}
	for _, pos := range slices.Sorted(maps.Keys(t.leaves)) {
		l := t.leaves[pos]
		sig, err := t.leafSignature(ctx, l)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		// leaves with identical sketches get distinct blobs
		w := blobstore.NewWriter(ctx, t.storage, fmt.Sprintf("%s/%s.%d", dir, sig.MD5Sum(), pos))
		if err := signature.SaveSignatures(w, []*signature.Signature{sig}, t.compression); err != nil {
			result = multierror.Append(result, fmt.Errorf("sbt: save leaf %q: %w", l.name, err))
			continue
		}
		if err := w.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("sbt: save leaf %q: %w", l.name, err))
			continue
		}
		l.path = w.Path()
	}
	if err := result.ErrorOrNil(); err != nil {
		return "", err
	}

	p, err := blobstore.Put(ctx, t.storage, ManifestPath(name), t)
	if err != nil {
		return "", fmt.Errorf("sbt: save manifest: %w", err)
	}
	log.Info(ctx).
		Str("manifest", p).
		Int("nodes", len(t.nodes)).
		Int("leaves", len(t.leaves)).
		Msg("sbt: saved tree")
	return p, nil
}

// List returns the names of the trees saved in st, in sorted order. The
// storage must implement blobstore.Lister.
func List(ctx context.Context, st blobstore.Storage) ([]string, error) {
	l, ok := st.(blobstore.Lister)
	if !ok {
		return nil, fmt.Errorf("sbt: storage %T cannot list trees", st)
	}
	paths, err := l.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("sbt: list trees: %w", err)
	}
	var names []string
	for _, p := range paths {
		if name, ok := strings.CutSuffix(p, manifestSuffix); ok && name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// Load reads the manifest saved as name from st. Node graphs and leaf
// signatures are loaded on first use. opts.Storage is replaced by st.
func Load(ctx context.Context, st blobstore.Storage, name string, opts Options) (*Tree, error) {
	data, err := st.Load(ctx, ManifestPath(name))
	if err != nil {
		return nil, fmt.Errorf("sbt: load manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("sbt: invalid manifest: %w", err)
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("sbt: unsupported manifest version %d", m.Version)
	}

	opts.Storage = st
	t, err := New(m.Factory, m.D, opts)
	if err != nil {
		return nil, err
	}
	for pos, n := range m.Nodes {
		if n.Path == "" {
			return nil, fmt.Errorf("sbt: node %d has no path", pos)
		}
		t.nodes[pos] = &Node{name: n.Name, path: n.Path, minNBelow: n.MinNBelow}
	}
	for pos, l := range m.Leaves {
		if l.Path == "" {
			return nil, fmt.Errorf("sbt: leaf %d has no path", pos)
		}
		if _, ok := t.nodes[pos]; ok {
			return nil, fmt.Errorf("sbt: position %d is both a node and a leaf", pos)
		}
		t.leaves[pos] = &Leaf{name: l.Name, path: l.Path}
	}
	log.Debug(ctx).
		Str("name", name).
		Int("nodes", len(t.nodes)).
		Int("leaves", len(t.leaves)).
		Msg("sbt: loaded tree manifest")
	return t, nil
}
