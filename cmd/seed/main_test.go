package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
)

func TestLoadStarters(t *testing.T) {
	prompts, err := loadStarters(starterYAML)
	require.NoError(t, err)
	require.Len(t, prompts, 14)

	titles := make(map[string]bool)
	for _, p := range prompts {
		assert.True(t, prompt.IsCategory(p.Category), p.Title)
		assert.True(t, p.IsPublic)
		assert.NotEmpty(t, p.Tags)
		assert.False(t, titles[p.Title], "duplicate %q", p.Title)
		titles[p.Title] = true
	}
	assert.True(t, titles["SQL Query Optimizer"])
}

func TestLoadStarters_RejectsInvalid(t *testing.T) {
	_, err := loadStarters([]byte("- title: \"\"\n  body: x\n"))
	assert.Error(t, err)
}
