package chatbot_test

import (
	"testing"

	"github.com/fyrsmithlabs/denguex/internal/chatbot"
	"github.com/fyrsmithlabs/denguex/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	hits := []vectorstore.Hit{
		{Score: 0.9, Record: vectorstore.Record{ID: "A#0", KBID: "A"}},
		{Score: 0.92, Record: vectorstore.Record{ID: "B#0", KBID: "B"}},
		{Score: 0.85, Record: vectorstore.Record{ID: "A#1", KBID: "A"}},
	}

	groups := chatbot.Aggregate(hits)
	require.Len(t, groups, 2)

	assert.Equal(t, "A", groups[0].KBID)
	assert.InDelta(t, 1.75, groups[0].ScoreSum, 1e-6)
	assert.InDelta(t, 0.9, groups[0].MaxScore, 1e-6)
	assert.Equal(t, "A#0", groups[0].Example.Record.ID)
	assert.Equal(t, 2, groups[0].Hits)

	assert.Equal(t, "B", groups[1].KBID)
	assert.InDelta(t, 0.92, groups[1].MaxScore, 1e-6)
}

func TestAggregate_KeepsFirstMax(t *testing.T) {
	groups := chatbot.Aggregate([]vectorstore.Hit{
		{Score: 0.7, Record: vectorstore.Record{ID: "A#0", KBID: "A"}},
		{Score: 0.7, Record: vectorstore.Record{ID: "A#1", KBID: "A"}},
	})

	require.Len(t, groups, 1)
	assert.Equal(t, "A#0", groups[0].Example.Record.ID)
}

func TestAggregate_TiesKeepFirstSeen(t *testing.T) {
	groups := chatbot.Aggregate([]vectorstore.Hit{
		{Score: 0.5, Record: vectorstore.Record{ID: "B#0", KBID: "B"}},
		{Score: 0.5, Record: vectorstore.Record{ID: "A#0", KBID: "A"}},
	})

	require.Len(t, groups, 2)
	assert.Equal(t, "B", groups[0].KBID)
	assert.Equal(t, "A", groups[1].KBID)
}

func TestAggregate_Empty(t *testing.T) {
	assert.Empty(t, chatbot.Aggregate(nil))
}
