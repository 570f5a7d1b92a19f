package exprparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowllm-go/flowllm/pkg/op"
)

func namedOp(name string) *op.BaseOp {
	return op.New(name, op.Hooks{
		Execute: func(o *op.BaseOp) error { return nil },
	})
}

func registryResolver(names ...string) Resolver {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	return func(name string) (op.Op, bool, error) {
		if !known[name] {
			return nil, false, nil
		}
		return namedOp(name), true, nil
	}
}

func TestParseSingleIdentifier(t *testing.T) {
	root, err := Parse("alpha", registryResolver("alpha"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", root.Name())
}

func TestParseSequentialExpression(t *testing.T) {
	root, err := Parse("alpha >> beta", registryResolver("alpha", "beta"))
	require.NoError(t, err)
	assert.Equal(t, op.KindSequential, root.Kind())
	require.Len(t, root.Children(), 2)
	assert.Equal(t, "alpha", root.Children()[0].Name())
	assert.Equal(t, "beta", root.Children()[1].Name())
}

func TestParseMixedPrecedence(t *testing.T) {
	// `|` binds looser than `>>`, so this is (alpha >> beta) | gamma.
	root, err := Parse("alpha >> beta | gamma", registryResolver("alpha", "beta", "gamma"))
	require.NoError(t, err)
	assert.Equal(t, op.KindParallel, root.Kind())
	require.Len(t, root.Children(), 2)
	assert.Equal(t, op.KindSequential, root.Children()[0].Kind())
}

func TestParseStatementsThenFinalExpression(t *testing.T) {
	content := "stage1 = alpha >> beta\nstage1 | gamma"
	root, err := Parse(content, registryResolver("alpha", "beta", "gamma"))
	require.NoError(t, err)
	assert.Equal(t, op.KindParallel, root.Kind())
}

func TestParseUnknownIdentifierErrors(t *testing.T) {
	_, err := Parse("alpha >> ghost", registryResolver("alpha"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
	assert.Contains(t, err.Error(), "not registered")
}

func TestParseMismatchedParenIsSyntaxError(t *testing.T) {
	_, err := Parse("(alpha >> beta", registryResolver("alpha", "beta"))
	require.Error(t, err)
	var synErr *SyntaxError
	require.ErrorAs(t, err, &synErr)
}

func TestParseIllegalCharacterReportsPosition(t *testing.T) {
	_, err := Parse("alpha >> bet@", registryResolver("alpha", "beta"))
	require.Error(t, err)
	var synErr *SyntaxError
	require.ErrorAs(t, err, &synErr)
	assert.Equal(t, 12, synErr.Pos)
}

func TestParseEmptyContentErrors(t *testing.T) {
	_, err := Parse("   \n  ", registryResolver())
	require.Error(t, err)
}

func TestRoundTripCanonicalForm(t *testing.T) {
	root, err := Parse("alpha >> beta", registryResolver("alpha", "beta"))
	require.NoError(t, err)

	canonical := op.CanonicalName(root.Kind(), root.Children())
	reparsed, err := Parse(canonical, registryResolver("alpha", "beta"))
	require.NoError(t, err)

	assert.Equal(t, op.CanonicalName(root.Kind(), root.Children()), op.CanonicalName(reparsed.Kind(), reparsed.Children()))
}
