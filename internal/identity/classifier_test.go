package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify_AllowList(t *testing.T) {
	classifier := NewClassifier(nil)

	tests := []struct {
		name    string
		email   string
		allowed bool
	}{
		{
			name:    "gov domain allowed",
			email:   "user@agency.gov",
			allowed: true,
		},
		{
			name:    "mil domain allowed",
			email:   "user@base.mil",
			allowed: true,
		},
		{
			name:    "fed.us domain allowed",
			email:   "user@agency.fed.us",
			allowed: true,
		},
		{
			name:    "com domain rejected",
			email:   "user@agency.com",
			allowed: false,
		},
		{
			name:    "no domain rejected",
			email:   "nodomain",
			allowed: false,
		},
		{
			name:    "empty local part rejected",
			email:   "@agency.gov",
			allowed: false,
		},
		{
			name:    "empty string rejected",
			email:   "",
			allowed: false,
		},
		{
			name:    "upper case domain allowed",
			email:   "user@AGENCY.GOV",
			allowed: true,
		},
		{
			name:    "gov must be a suffix match with dot",
			email:   "user@fakegov",
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := classifier.Classify(tt.email)
			require.Equal(t, tt.allowed, cls.Allowed)
		})
	}
}

func TestClassify_TenancyKey(t *testing.T) {
	classifier := NewClassifier(nil)

	tests := []struct {
		name  string
		email string
		key   string
	}{
		{
			name:  "subdomain stripped",
			email: "foo@sub.state.gov",
			key:   "state",
		},
		{
			name:  "plain gov domain",
			email: "foo@state.gov",
			key:   "state",
		},
		{
			name:  "fed.us stripped as one suffix",
			email: "foo@agency.fed.us",
			key:   "agency",
		},
		{
			name:  "mil domain",
			email: "foo@navy.mil",
			key:   "navy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := classifier.Classify(tt.email)
			require.True(t, cls.Allowed)
			require.Equal(t, tt.key, cls.TenancyKey)
		})
	}
}

func TestClassify_TenancyKeyUnknownSuffix(t *testing.T) {
	// Literal roster domains outside the known suffixes use the
	// second-to-last label.
	classifier := NewClassifier([]string{"example.edu"})

	cls := classifier.Classify("foo@example.edu")
	require.True(t, cls.Allowed)
	require.Equal(t, "example", cls.TenancyKey)
}

func TestClassify_WorkspaceKey(t *testing.T) {
	classifier := NewClassifier(nil)

	cls := classifier.Classify("Alice.Smith@test.gov")
	require.True(t, cls.Allowed)
	require.Equal(t, "alice.smith", cls.WorkspaceKey)
}

func TestClassify_LiteralDomainEntry(t *testing.T) {
	classifier := NewClassifier([]string{"example.edu"})

	require.True(t, classifier.Classify("user@example.edu").Allowed)
	require.False(t, classifier.Classify("user@sub.example.edu").Allowed)
	require.False(t, classifier.Classify("user@agency.gov").Allowed)
}
