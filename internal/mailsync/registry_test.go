package mailsync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

func TestRegistryIdentity(t *testing.T) {
	r := NewRegistry()
	first := &Session{account: &core.Account{ID: "a"}}
	second := &Session{account: &core.Account{ID: "a"}}

	assert.Nil(t, r.Replace("a", first))
	assert.True(t, r.IsCurrent("a", first))

	assert.Same(t, first, r.Replace("a", second))
	assert.False(t, r.IsCurrent("a", first))
	assert.True(t, r.IsCurrent("a", second))

	assert.False(t, r.Remove("a", first), "stale session must not remove the current one")
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.Remove("a", second))
	assert.Zero(t, r.Len())
	assert.False(t, r.IsCurrent("a", nil))
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"c", "a", "b"} {
		r.Replace(id, &Session{account: &core.Account{ID: id}})
	}
	var ids []string
	for _, s := range r.List() {
		ids = append(ids, s.AccountID())
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}
