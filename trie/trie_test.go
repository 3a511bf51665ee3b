package trie_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/traxacun/gibson/trie"
)

func keysUnder(t *trie.Tree[int], prefix string) []string {
	c, ok := t.FindPrefix([]byte(prefix))
	if !ok {
		return nil
	}
	var out []string
	t.Walk(c, func(key []byte, _ int) bool {
		out = append(out, string(key))
		return false
	})
	return out
}

func TestInsertFindOverwrite(t *testing.T) {
	tr := trie.New[int]()
	_, replaced := tr.Insert([]byte("foo"), 1)
	require.False(t, replaced)

	v, ok := tr.Find([]byte("foo"))
	require.True(t, ok)
	require.Equal(t, 1, v)

	old, replaced := tr.Insert([]byte("foo"), 2)
	require.True(t, replaced)
	require.Equal(t, 1, old)

	v, ok = tr.Find([]byte("foo"))
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestEdgeSplitAndSharedPrefixes(t *testing.T) {
	tr := trie.New[int]()
	tr.Insert([]byte("app"), 1)
	tr.Insert([]byte("apple"), 2)
	tr.Insert([]byte("apply"), 3)

	for key, want := range map[string]int{"app": 1, "apple": 2, "apply": 3} {
		v, ok := tr.Find([]byte(key))
		require.True(t, ok, key)
		require.Equal(t, want, v, key)
	}

	_, ok := tr.Find([]byte("ap"))
	require.False(t, ok)
	_, ok = tr.Find([]byte("appl"))
	require.False(t, ok)
}

func TestPrefixClosureAndOrdering(t *testing.T) {
	tr := trie.New[int]()
	keys := []string{"/u/2", "/u/1", "/v/1", "/u/10"}
	for i, k := range keys {
		tr.Insert([]byte(k), i)
	}

	got := keysUnder(tr, "/u/")
	want := []string{"/u/1", "/u/10", "/u/2"}
	sort.Strings(want)
	require.Equal(t, want, got)
}

func TestMidEdgePrefixIsWalkable(t *testing.T) {
	tr := trie.New[int]()
	tr.Insert([]byte("apple"), 1)
	tr.Insert([]byte("apply"), 2)

	got := keysUnder(tr, "ap")
	require.ElementsMatch(t, []string{"apple", "apply"}, got)
}

func TestPrefixNotWalkable(t *testing.T) {
	tr := trie.New[int]()
	tr.Insert([]byte("foo"), 1)

	_, ok := tr.FindPrefix([]byte("bar"))
	require.False(t, ok)
}

func TestDeleteCompactsToEmptyRoot(t *testing.T) {
	tr := trie.New[int]()
	keys := []string{"/u/1", "/u/2", "/v/1"}
	for i, k := range keys {
		tr.Insert([]byte(k), i)
	}
	for _, k := range keys {
		_, ok := tr.Delete([]byte(k))
		require.True(t, ok, k)
	}
	require.Equal(t, 1, tr.NodeCount())
	require.Equal(t, 0, tr.Len())
}

func TestWalkDeleteCompactsDuringTraversal(t *testing.T) {
	tr := trie.New[int]()
	tr.Insert([]byte("/u/1"), 1)
	tr.Insert([]byte("/u/2"), 2)
	tr.Insert([]byte("/v/1"), 3)

	c, ok := tr.FindPrefix([]byte("/u/"))
	require.True(t, ok)
	tr.Walk(c, func(key []byte, _ int) bool { return true })

	_, ok = tr.Find([]byte("/u/1"))
	require.False(t, ok)
	_, ok = tr.Find([]byte("/v/1"))
	require.True(t, ok)
	require.Equal(t, 1, tr.Len())
}

func TestWalkWholeTree(t *testing.T) {
	tr := trie.New[int]()
	tr.Insert([]byte("a"), 1)
	tr.Insert([]byte("b"), 2)

	var got []string
	tr.Walk(tr.Root(), func(key []byte, _ int) bool {
		got = append(got, string(key))
		return false
	})
	require.ElementsMatch(t, []string{"a", "b"}, got)
}
