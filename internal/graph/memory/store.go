// Package memory provides an in-process graph.Store.
//
// Writers are serialized and each transaction works on a private copy of the graph that
// replaces the committed state only when the transaction function succeeds. It backs
// GRAPH_DRIVER=memory dry runs and the projection tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/allisson/recipegraph/internal/graph"
)

// Edge is a committed relationship.
type Edge struct {
	From  graph.NodeRef
	Rel   graph.RelType
	To    graph.NodeRef
	Props graph.Props
}

type edgeKey struct {
	from graph.NodeRef
	rel  graph.RelType
	to   graph.NodeRef
}

type state struct {
	nodes map[graph.NodeRef]graph.Props
	edges map[edgeKey]graph.Props
}

func newState() *state {
	return &state{
		nodes: make(map[graph.NodeRef]graph.Props),
		edges: make(map[edgeKey]graph.Props),
	}
}

func (s *state) clone() *state {
	c := newState()
	for ref, props := range s.nodes {
		c.nodes[ref] = maps.Clone(props)
	}
	for key, props := range s.edges {
		c.edges[key] = maps.Clone(props)
	}
	return c
}

// Store is an in-memory graph.Store.
type Store struct {
	mu       sync.Mutex
	state    *state
	failNext []error
	writes   int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// FailNext makes the next ExecuteWrite calls fail with the given errors, in order,
// after running the transaction function. The staged writes are discarded.
func (s *Store) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = append(s.failNext, errs...)
}

// ExecuteWrite implements graph.Store.
func (s *Store) ExecuteWrite(ctx context.Context, fn func(ctx context.Context, tx graph.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", graph.ErrUnavailable, err)
	}

	tx := &memTx{state: s.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if len(s.failNext) > 0 {
		err := s.failNext[0]
		s.failNext = s.failNext[1:]
		return err
	}

	s.state = tx.state
	s.writes++
	return nil
}

// VerifyConnectivity implements graph.Store.
func (s *Store) VerifyConnectivity(ctx context.Context) error {
	return ctx.Err()
}

// Close implements graph.Store.
func (s *Store) Close(ctx context.Context) error {
	return nil
}

// Writes returns the number of committed transactions.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Node returns the properties of a committed node.
func (s *Store) Node(ref graph.NodeRef) (graph.Props, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	props, ok := s.state.nodes[ref]
	return maps.Clone(props), ok
}

// Nodes returns the committed nodes carrying label, sorted by key.
func (s *Store) Nodes(label graph.Label) []graph.NodeRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	var refs []graph.NodeRef
	for ref := range s.state.nodes {
		if ref.Label == label {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Key < refs[j].Key })
	return refs
}

// Edges returns the committed relationships of type rel leaving from, sorted by target.
func (s *Store) Edges(from graph.NodeRef, rel graph.RelType) []Edge {
	s.mu.Lock()
	defer s.mu.Unlock()

	var edges []Edge
	for key, props := range s.state.edges {
		if key.from == from && key.rel == rel {
			edges = append(edges, Edge{From: key.from, Rel: key.rel, To: key.to, Props: maps.Clone(props)})
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].To.String() < edges[j].To.String() })
	return edges
}

// Dump renders the whole committed graph as sorted lines, one per node and relationship.
// Two graphs with equal content produce equal dumps.
func (s *Store) Dump() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]string, 0, len(s.state.nodes)+len(s.state.edges))
	for ref, props := range s.state.nodes {
		lines = append(lines, fmt.Sprintf("node %s %s", ref, formatProps(props)))
	}
	for key, props := range s.state.edges {
		lines = append(lines, fmt.Sprintf("edge %s-[%s]->%s %s", key.from, key.rel, key.to, formatProps(props)))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func formatProps(props graph.Props) string {
	keys := slices.Sorted(maps.Keys(props))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, props[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// memTx is the graph.Tx working on a private copy of the state.
type memTx struct {
	state *state
}

func checkLabel(label graph.Label) error {
	if !graph.ValidIdentifier(string(label)) {
		return fmt.Errorf("%w: label %q", graph.ErrInvalidIdentifier, label)
	}
	return nil
}

func checkRel(rel graph.RelType) error {
	if !graph.ValidIdentifier(string(rel)) {
		return fmt.Errorf("%w: relationship %q", graph.ErrInvalidIdentifier, rel)
	}
	return nil
}

func (t *memTx) mergeNode(ref graph.NodeRef) graph.Props {
	props, ok := t.state.nodes[ref]
	if !ok {
		props = graph.Props{graph.KeyProperty: ref.Key}
		t.state.nodes[ref] = props
	}
	return props
}

func (t *memTx) MergeNode(ctx context.Context, node graph.NodeRef, props graph.Props) error {
	if err := checkLabel(node.Label); err != nil {
		return err
	}
	current := t.mergeNode(node)
	for k, v := range props {
		if k == graph.KeyProperty {
			continue
		}
		if v == nil {
			delete(current, k)
			continue
		}
		current[k] = v
	}
	return nil
}

func (t *memTx) MergeEdge(
	ctx context.Context,
	from graph.NodeRef,
	rel graph.RelType,
	to graph.NodeRef,
	props graph.Props,
) error {
	if err := checkLabel(from.Label); err != nil {
		return err
	}
	if err := checkLabel(to.Label); err != nil {
		return err
	}
	if err := checkRel(rel); err != nil {
		return err
	}
	t.mergeNode(from)
	t.mergeNode(to)

	replaced := graph.Props{}
	for k, v := range props {
		if v != nil {
			replaced[k] = v
		}
	}
	t.state.edges[edgeKey{from: from, rel: rel, to: to}] = replaced
	return nil
}

func (t *memTx) PruneEdges(
	ctx context.Context,
	from graph.NodeRef,
	rel graph.RelType,
	toLabel graph.Label,
	keep []string,
) (int, error) {
	if err := checkRel(rel); err != nil {
		return 0, err
	}
	removed := 0
	for key := range t.state.edges {
		if key.from == from && key.rel == rel && key.to.Label == toLabel && !slices.Contains(keep, key.to.Key) {
			delete(t.state.edges, key)
			removed++
		}
	}
	return removed, nil
}

func (t *memTx) PruneOwned(
	ctx context.Context,
	owner graph.NodeRef,
	rel graph.RelType,
	childLabel graph.Label,
	keep []string,
) (int, error) {
	if err := checkRel(rel); err != nil {
		return 0, err
	}
	var doomed []graph.NodeRef
	for key := range t.state.edges {
		if key.from == owner && key.rel == rel && key.to.Label == childLabel && !slices.Contains(keep, key.to.Key) {
			doomed = append(doomed, key.to)
		}
	}
	for _, child := range doomed {
		t.detachDelete(child)
	}
	return len(doomed), nil
}

func (t *memTx) DetachDelete(ctx context.Context, node graph.NodeRef) (bool, error) {
	if err := checkLabel(node.Label); err != nil {
		return false, err
	}
	return t.detachDelete(node), nil
}

func (t *memTx) detachDelete(node graph.NodeRef) bool {
	if _, ok := t.state.nodes[node]; !ok {
		return false
	}
	for key := range t.state.edges {
		if key.from == node || key.to == node {
			delete(t.state.edges, key)
		}
	}
	delete(t.state.nodes, node)
	return true
}
