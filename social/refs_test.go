package social

import (
	"testing"

	"github.com/stretchr/testify/require"

	"socialindex/events"
)

func TestExtractReferencesParent(t *testing.T) {
	refs := ExtractReferences(events.Fields{
		"parent":      "bob.testnet/post/main",
		"parent_type": "reply",
	})
	require.Equal(t, "bob.testnet/post/main", refs.ParentPath)
	require.Equal(t, "bob.testnet", refs.ParentAuthor)
	require.Equal(t, "reply", refs.ParentType)
	require.Empty(t, refs.RefPath)
	require.Nil(t, refs.Refs)
}

func TestExtractReferencesSingleRef(t *testing.T) {
	refs := ExtractReferences(events.Fields{
		"ref":      "carol.testnet/post/xyz",
		"ref_type": "quote",
	})
	require.Equal(t, "carol.testnet/post/xyz", refs.RefPath)
	require.Equal(t, "carol.testnet", refs.RefAuthor)
	require.Equal(t, "quote", refs.RefType)
}

func TestExtractReferencesMultiRefParallelAuthors(t *testing.T) {
	refs := ExtractReferences(events.Fields{
		"refs": []any{"a.testnet/post/1", "b.testnet/task/2", "c.testnet/post/3"},
	})
	require.Equal(t, []string{"a.testnet/post/1", "b.testnet/task/2", "c.testnet/post/3"}, refs.Refs)
	require.Equal(t, []string{"a.testnet", "b.testnet", "c.testnet"}, refs.RefAuthors)
	require.Len(t, refs.RefAuthors, len(refs.Refs))
}

func TestExtractReferencesSkipsUnusableEntries(t *testing.T) {
	refs := ExtractReferences(events.Fields{
		"refs": []any{"", 42, " a.testnet/post/1 "},
	})
	require.Equal(t, []string{"a.testnet/post/1"}, refs.Refs)
	require.Equal(t, []string{"a.testnet"}, refs.RefAuthors)
}

func TestExtractReferencesZeroValue(t *testing.T) {
	require.Equal(t, References{}, ExtractReferences(nil))
	require.Equal(t, References{}, ExtractReferences(events.Fields{"body": "hello"}))
	// A type without its path is ignored.
	require.Equal(t, References{}, ExtractReferences(events.Fields{"parent_type": "reply"}))
}
