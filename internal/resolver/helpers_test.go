package resolver

import (
	"context"
	"sync"
	"testing"

	"github.com/ctrlpath/evalcore/internal/artifact"
	"github.com/ctrlpath/evalcore/internal/resultcache"
	"github.com/stretchr/testify/require"
)

// countingCache wraps an in-memory Cache and tallies Lookup/Store calls so
// tests can assert on cache-hit behavior without reaching into internals.
type countingCache struct {
	mu      sync.Mutex
	inner   resultcache.Cache
	lookups int64
	stores  int64
}

func newCountingCache() *countingCache {
	return &countingCache{inner: resultcache.NewMemory(0)}
}

func (c *countingCache) Lookup(ctx context.Context, key string) (resultcache.Entry, bool, error) {
	c.mu.Lock()
	c.lookups++
	c.mu.Unlock()
	return c.inner.Lookup(ctx, key)
}

func (c *countingCache) Store(ctx context.Context, key string, entry resultcache.Entry) error {
	c.mu.Lock()
	c.stores++
	c.mu.Unlock()
	return c.inner.Store(ctx, key, entry)
}

func (c *countingCache) DeletePrefix(ctx context.Context, prefix string) error {
	return c.inner.DeletePrefix(ctx, prefix)
}

func (c *countingCache) InvalidateAll(ctx context.Context) error {
	return c.inner.InvalidateAll(ctx)
}

func (c *countingCache) Size(ctx context.Context) (int64, error) {
	return c.inner.Size(ctx)
}

func (c *countingCache) Close(ctx context.Context) error {
	return c.inner.Close(ctx)
}

func (c *countingCache) size() int64 {
	n, _ := c.inner.Size(context.Background())
	return n
}

// buildArtifact round-trips a hand-built Artifact through Encode/Decode so
// the result carries a populated flagIndex, the same fixture technique
// internal/artifact/codec_test.go uses to exercise signed-artifact paths.
func buildArtifact(t *testing.T, a *artifact.Artifact) *artifact.Artifact {
	t.Helper()
	buf, err := artifact.Encode(a)
	require.NoError(t, err)
	decoded, err := artifact.Load(buf, artifact.VerifyOptions{})
	require.NoError(t, err)
	return decoded
}

func boolServeRule(v bool) artifact.Rule {
	return artifact.Rule{
		Kind:  artifact.RuleServe,
		Serve: &artifact.Expr{Kind: artifact.ExprLiteral, Literal: artifact.Literal{Kind: artifact.LitBool, Bool: v}},
	}
}

func stringServeRule(strRef int) artifact.Rule {
	return artifact.Rule{
		Kind:  artifact.RuleServe,
		Serve: &artifact.Expr{Kind: artifact.ExprLiteral, Literal: artifact.Literal{Kind: artifact.LitStringRef, StrRef: strRef}},
	}
}

func roleGuard(pathIdx, strRefIdx int) *artifact.Expr {
	return &artifact.Expr{
		Kind:     artifact.ExprBinaryOp,
		BinaryOp: artifact.OpEQ,
		Left:     &artifact.Expr{Kind: artifact.ExprProperty, PathIndex: pathIdx},
		Right:    &artifact.Expr{Kind: artifact.ExprLiteral, Literal: artifact.Literal{Kind: artifact.LitStringRef, StrRef: strRefIdx}},
	}
}

// singleBoolFlagArtifact builds a one-flag artifact named flagName whose only
// rule unconditionally serves a boolean literal.
func singleBoolFlagArtifact(t *testing.T, flagName string, value bool) *artifact.Artifact {
	t.Helper()
	return buildArtifact(t, &artifact.Artifact{
		Version:     "1",
		Environment: "test",
		Strings:     []string{flagName},
		Flags:       [][]artifact.Rule{{boolServeRule(value)}},
		FlagNames:   []uint16{0},
	})
}
