package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSortPreviews(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ps := []ChatPreview{
		{ID: "a", UpdatedAt: ts},
		{ID: "c", UpdatedAt: ts},
		{ID: "b", UpdatedAt: ts.Add(time.Second)},
		{ID: "p", UpdatedAt: ts.Add(-time.Hour), IsPinned: true},
		{ID: "q", UpdatedAt: ts.Add(-2 * time.Hour), IsPinned: true},
	}
	SortPreviews(ps)

	var ids []string
	for _, p := range ps {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"p", "q", "b", "c", "a"}, ids)
}

func TestStatusRank(t *testing.T) {
	assert.Less(t, StatusSending.Rank(), StatusSent.Rank())
	assert.Less(t, StatusSent.Rank(), StatusDelivered.Rank())
	assert.Less(t, StatusDelivered.Rank(), StatusRead.Rank())
	assert.Equal(t, StatusSending.Rank(), StatusFailed.Rank())
}

func TestChatParticipants(t *testing.T) {
	c := Chat{ID: "c", Participants: []string{"a", "b"}}
	assert.True(t, c.HasParticipant("a"))
	assert.False(t, c.HasParticipant("z"))
	assert.Equal(t, "b", c.Peer("a"))
	assert.Equal(t, "a", c.Peer("b"))
}
