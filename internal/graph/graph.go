// Package graph defines the transactional graph store capability used by the projector.
//
// Nodes are addressed by a label and a stable natural key stored in the "id" property.
// Every write goes through Store.ExecuteWrite so that a whole aggregate rewrite commits
// or rolls back as one unit.
package graph

import (
	"context"
	"fmt"
	"regexp"

	apperrors "github.com/allisson/recipegraph/internal/errors"
)

// KeyProperty is the node property holding the natural key.
const KeyProperty = "id"

// Label is a node label.
type Label string

// RelType is a relationship type.
type RelType string

// Props holds node or relationship properties. A nil value removes the property.
type Props map[string]any

// NodeRef addresses a node by label and natural key.
type NodeRef struct {
	Label Label
	Key   string
}

// String renders the reference as Label(key).
func (n NodeRef) String() string {
	return fmt.Sprintf("%s(%s)", n.Label, n.Key)
}

// Graph store errors.
var (
	// ErrUnavailable indicates the graph store could not be reached or timed out.
	ErrUnavailable = apperrors.Wrap(apperrors.ErrTransient, "graph store unavailable")

	// ErrConflict indicates the transaction lost a race with a concurrent writer.
	ErrConflict = apperrors.Wrap(apperrors.ErrConflict, "graph transaction conflict")

	// ErrInvalidIdentifier indicates a label or relationship type that is not a plain identifier.
	ErrInvalidIdentifier = apperrors.Wrap(apperrors.ErrPermanent, "invalid graph identifier")
)

// Tx is the set of operations available inside one write transaction.
type Tx interface {
	// MergeNode creates the node if missing and sets the given properties on it.
	MergeNode(ctx context.Context, node NodeRef, props Props) error

	// MergeEdge creates both endpoints and the relationship between them if missing,
	// then replaces the relationship properties with props.
	MergeEdge(ctx context.Context, from NodeRef, rel RelType, to NodeRef, props Props) error

	// PruneEdges deletes rel relationships from `from` to nodes labelled toLabel whose
	// key is not in keep. Target nodes are left untouched. It returns the number of
	// relationships removed.
	PruneEdges(ctx context.Context, from NodeRef, rel RelType, toLabel Label, keep []string) (int, error)

	// PruneOwned detach-deletes nodes labelled childLabel reached from owner through rel
	// whose key is not in keep. It returns the number of nodes removed.
	PruneOwned(ctx context.Context, owner NodeRef, rel RelType, childLabel Label, keep []string) (int, error)

	// DetachDelete removes the node and all of its relationships. It reports whether
	// the node existed.
	DetachDelete(ctx context.Context, node NodeRef) (bool, error)
}

// Store runs atomic write transactions against a graph database.
type Store interface {
	// ExecuteWrite runs fn inside one transaction. Nothing fn wrote is visible unless
	// fn returns nil and the commit succeeds. fn may be invoked more than once when
	// the underlying driver retries, so it must not have side effects outside tx.
	ExecuteWrite(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// VerifyConnectivity checks the store can be reached.
	VerifyConnectivity(ctx context.Context) error

	// Close releases the store's resources.
	Close(ctx context.Context) error
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s can be safely interpolated as a label or type name.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}
