package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy/tutor-backend/internal/models"
)

func makeTurns(n int) []models.Turn {
	turns := make([]models.Turn, n)
	for i := range turns {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		turns[i] = models.Turn{Role: role, Content: fmt.Sprintf("message number %d with some words", i)}
	}
	return turns
}

func TestContextCompactor_ShortHistoryIsNoop(t *testing.T) {
	c := NewContextCompactor(14, 10)
	for _, n := range []int{0, 1, 10, 14} {
		turns := makeTurns(n)
		comp := c.Compact(turns)
		assert.Empty(t, comp.Summary)
		assert.Equal(t, turns, comp.Trimmed)
		assert.Len(t, c.ForModel(comp), n)
	}
}

func TestContextCompactor_LongHistory(t *testing.T) {
	c := NewContextCompactor(14, 10)
	turns := makeTurns(16)
	turns[0].Content = "short"

	comp := c.Compact(turns)
	require.Len(t, comp.Trimmed, 10)
	assert.Equal(t, turns[6], comp.Trimmed[0])

	// turn 0 is a short user turn and is skipped
	want := "Earlier in our conversation: I guided: message number 1 with some words. " +
		"Student asked: message number 2 with some words. " +
		"I guided: message number 3 with some words. " +
		"Student asked: message number 4 with some words..."
	assert.Equal(t, want, comp.Summary)

	msgs := c.ForModel(comp)
	require.Len(t, msgs, 11)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "[Context: "+want+"]", msgs[0].Content)
	assert.Equal(t, turns[15].Content, msgs[10].Content)
}

func TestContextCompactor_TruncatesTurns(t *testing.T) {
	c := NewContextCompactor(14, 10)
	turns := makeTurns(15)
	turns[0].Content = strings.Repeat("é", 60)

	comp := c.Compact(turns)
	assert.True(t, strings.HasPrefix(comp.Summary, "Earlier in our conversation: Student asked: "+strings.Repeat("é", 40)+". "))
}
