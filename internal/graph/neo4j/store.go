// Package neo4j implements graph.Store on top of the official Neo4j Go driver.
//
// Labels and relationship types cannot be passed as Cypher parameters, so they are
// interpolated into the statements after graph.ValidIdentifier has accepted them. Keys,
// properties and keep-lists always travel as parameters.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	neo "github.com/neo4j/neo4j-go-driver/v5/neo4j"
	neoconfig "github.com/neo4j/neo4j-go-driver/v5/neo4j/config"

	apperrors "github.com/allisson/recipegraph/internal/errors"
	"github.com/allisson/recipegraph/internal/graph"
)

// Config holds the connection settings of the graph database.
type Config struct {
	URI       string
	Username  string
	Password  string
	Database  string
	TxTimeout time.Duration
}

// Store is a graph.Store backed by a Neo4j driver.
type Store struct {
	driver    neo.DriverWithContext
	database  string
	txTimeout time.Duration
}

// NewStore creates the driver. It does not contact the server; call VerifyConnectivity.
func NewStore(cfg Config) (*Store, error) {
	driver, err := neo.NewDriverWithContext(
		cfg.URI,
		neo.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neoconfig.Config) {
			// Retries are decided by the outbox ledger, not inside the driver.
			c.MaxTransactionRetryTime = 0
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	return &Store{driver: driver, database: cfg.Database, txTimeout: cfg.TxTimeout}, nil
}

// ExecuteWrite runs fn inside one managed write transaction.
func (s *Store) ExecuteWrite(ctx context.Context, fn func(ctx context.Context, tx graph.Tx) error) error {
	session := s.driver.NewSession(ctx, neo.SessionConfig{
		AccessMode:   neo.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer func() {
		_ = session.Close(ctx)
	}()

	var configurers []func(*neo.TransactionConfig)
	if s.txTimeout > 0 {
		configurers = append(configurers, neo.WithTxTimeout(s.txTimeout))
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo.ManagedTransaction) (any, error) {
		return nil, fn(ctx, &cypherTx{tx: tx})
	}, configurers...)
	return classifyError(err)
}

// VerifyConnectivity checks that the server is reachable with the configured credentials.
func (s *Store) VerifyConnectivity(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return classifyError(err)
	}
	return nil
}

// Close closes the driver and its connection pool.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

const (
	deadlockCode = "Neo.TransientError.Transaction.DeadlockDetected"

	// Covers TransactionTimedOut and TransactionTimedOutClientConfiguration, the latter
	// being what a WithTxTimeout expiry reports on Neo4j 5.
	txTimedOutPrefix = "Neo.ClientError.Transaction.TransactionTimedOut"
)

func isClassified(err error) bool {
	return apperrors.Is(err, apperrors.ErrTransient) ||
		apperrors.Is(err, apperrors.ErrConflict) ||
		apperrors.IsPermanent(err)
}

// classifyError maps driver errors onto the graph error kinds. Errors already carrying a
// classification pass through.
//
// With driver retries disabled, ExecuteWrite reports retryable failures as a
// TransactionExecutionLimit holding the attempts' errors. It does not unwrap, so the
// last attempt's error is classified instead.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if isClassified(err) {
		return err
	}

	cause := err
	var limit *neo.TransactionExecutionLimit
	if errors.As(err, &limit) && len(limit.Errors) > 0 {
		cause = limit.Errors[len(limit.Errors)-1]
		if isClassified(cause) {
			return apperrors.Join(cause, err)
		}
	}

	var neoErr *neo.Neo4jError
	if errors.As(cause, &neoErr) {
		switch {
		case neoErr.Code == deadlockCode:
			return apperrors.Join(graph.ErrConflict, err)
		case strings.HasPrefix(neoErr.Code, txTimedOutPrefix):
			return apperrors.Join(graph.ErrUnavailable, err)
		case neoErr.Classification() == "TransientError":
			return apperrors.Join(graph.ErrUnavailable, err)
		case neoErr.Classification() == "ClientError":
			return apperrors.Join(apperrors.ErrPermanent, err)
		}
	}

	if errors.Is(cause, context.DeadlineExceeded) || neo.IsConnectivityError(cause) || neo.IsRetryable(cause) {
		return apperrors.Join(graph.ErrUnavailable, err)
	}
	if limit != nil {
		return apperrors.Join(graph.ErrUnavailable, err)
	}
	return err
}

func checkIdentifiers(names ...string) error {
	for _, name := range names {
		if !graph.ValidIdentifier(name) {
			return fmt.Errorf("%w: %q", graph.ErrInvalidIdentifier, name)
		}
	}
	return nil
}

func mergeNodeStatement(label graph.Label) string {
	return fmt.Sprintf("MERGE (n:%s {id: $key}) SET n += $props", label)
}

func mergeEdgeStatement(fromLabel graph.Label, rel graph.RelType, toLabel graph.Label) string {
	return strings.Join([]string{
		fmt.Sprintf("MERGE (a:%s {id: $from})", fromLabel),
		fmt.Sprintf("MERGE (b:%s {id: $to})", toLabel),
		fmt.Sprintf("MERGE (a)-[r:%s]->(b)", rel),
		"SET r = $props",
	}, " ")
}

func pruneEdgesStatement(fromLabel graph.Label, rel graph.RelType, toLabel graph.Label) string {
	return strings.Join([]string{
		fmt.Sprintf("MATCH (a:%s {id: $from})-[r:%s]->(b:%s)", fromLabel, rel, toLabel),
		"WHERE NOT b.id IN $keep",
		"DELETE r",
		"RETURN count(r) AS removed",
	}, " ")
}

func pruneOwnedStatement(ownerLabel graph.Label, rel graph.RelType, childLabel graph.Label) string {
	return strings.Join([]string{
		fmt.Sprintf("MATCH (a:%s {id: $owner})-[:%s]->(c:%s)", ownerLabel, rel, childLabel),
		"WHERE NOT c.id IN $keep",
		"DETACH DELETE c",
		"RETURN count(c) AS removed",
	}, " ")
}

func detachDeleteStatement(label graph.Label) string {
	return fmt.Sprintf("MATCH (n:%s {id: $key}) DETACH DELETE n RETURN count(n) AS removed", label)
}

// writableProps drops the key property, which is owned by the MERGE pattern.
func writableProps(props graph.Props) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if k != graph.KeyProperty {
			out[k] = v
		}
	}
	return out
}

// keepList never returns nil: `x IN null` is null in Cypher and would match nothing.
func keepList(keep []string) []string {
	if keep == nil {
		return []string{}
	}
	return keep
}

type cypherTx struct {
	tx neo.ManagedTransaction
}

func (c *cypherTx) run(ctx context.Context, cypher string, params map[string]any) error {
	result, err := c.tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

func (c *cypherTx) count(ctx context.Context, cypher string, params map[string]any) (int, error) {
	result, err := c.tx.Run(ctx, cypher, params)
	if err != nil {
		return 0, err
	}
	record, err := result.Single(ctx)
	if err != nil {
		return 0, err
	}
	removed, _, err := neo.GetRecordValue[int64](record, "removed")
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}

func (c *cypherTx) MergeNode(ctx context.Context, node graph.NodeRef, props graph.Props) error {
	if err := checkIdentifiers(string(node.Label)); err != nil {
		return err
	}
	return c.run(ctx, mergeNodeStatement(node.Label), map[string]any{
		"key":   node.Key,
		"props": writableProps(props),
	})
}

func (c *cypherTx) MergeEdge(
	ctx context.Context,
	from graph.NodeRef,
	rel graph.RelType,
	to graph.NodeRef,
	props graph.Props,
) error {
	if err := checkIdentifiers(string(from.Label), string(rel), string(to.Label)); err != nil {
		return err
	}
	return c.run(ctx, mergeEdgeStatement(from.Label, rel, to.Label), map[string]any{
		"from":  from.Key,
		"to":    to.Key,
		"props": map[string]any(props),
	})
}

func (c *cypherTx) PruneEdges(
	ctx context.Context,
	from graph.NodeRef,
	rel graph.RelType,
	toLabel graph.Label,
	keep []string,
) (int, error) {
	if err := checkIdentifiers(string(from.Label), string(rel), string(toLabel)); err != nil {
		return 0, err
	}
	return c.count(ctx, pruneEdgesStatement(from.Label, rel, toLabel), map[string]any{
		"from": from.Key,
		"keep": keepList(keep),
	})
}

func (c *cypherTx) PruneOwned(
	ctx context.Context,
	owner graph.NodeRef,
	rel graph.RelType,
	childLabel graph.Label,
	keep []string,
) (int, error) {
	if err := checkIdentifiers(string(owner.Label), string(rel), string(childLabel)); err != nil {
		return 0, err
	}
	return c.count(ctx, pruneOwnedStatement(owner.Label, rel, childLabel), map[string]any{
		"owner": owner.Key,
		"keep":  keepList(keep),
	})
}

func (c *cypherTx) DetachDelete(ctx context.Context, node graph.NodeRef) (bool, error) {
	if err := checkIdentifiers(string(node.Label)); err != nil {
		return false, err
	}
	removed, err := c.count(ctx, detachDeleteStatement(node.Label), map[string]any{"key": node.Key})
	return removed > 0, err
}
