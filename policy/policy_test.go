package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"verifyengine/policy"
)

func TestPolicy_IsDisposable(t *testing.T) {
	p := policy.New()
	assert.True(t, p.IsDisposable("mailinator.com"))
	assert.True(t, p.IsDisposable("MAILINATOR.COM"))
	assert.False(t, p.IsDisposable("example.com"))
}

func TestPolicy_IsFreeProvider(t *testing.T) {
	p := policy.New()
	assert.True(t, p.IsFreeProvider("gmail.com"))
	assert.False(t, p.IsFreeProvider("acme-corp.com"))
}

func TestPolicy_Suggest_HardCodedTypo(t *testing.T) {
	p := policy.New()
	assert.Equal(t, "alice@gmail.com", p.Suggest("alice@gmai.com"))
}

func TestPolicy_Suggest_LevenshteinFallback(t *testing.T) {
	p := policy.New()
	assert.Equal(t, "bob@yandex.com", p.Suggest("bob@yandexx.com"))
}

func TestPolicy_Suggest_NoSuggestionOnExactMatch(t *testing.T) {
	p := policy.New()
	assert.Equal(t, "", p.Suggest("carol@gmail.com"))
}

func TestPolicy_Suggest_NoSuggestionWhenTooFar(t *testing.T) {
	p := policy.New()
	assert.Equal(t, "", p.Suggest("dave@somecompletelyunrelateddomain.example"))
}

func TestPolicy_Category(t *testing.T) {
	p := policy.New()
	assert.Equal(t, "legacy", p.Category("aol.com"))
	assert.Equal(t, "established", p.Category("gmail.com"))
	assert.Equal(t, "institutional", p.Category("mit.edu"))
	assert.Equal(t, "organization", p.Category("example.org"))
	assert.Equal(t, "standard", p.Category("acme.io"))
}
