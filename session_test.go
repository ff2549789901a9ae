package main

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationBoundedKeepsMostRecent(t *testing.T) {
	c := NewConversation(4, time.Hour)
	base := time.Unix(1000, 0)
	for i := 0; i < 7; i++ {
		c.AddUser(base.Add(time.Duration(i)*time.Second), fmt.Sprintf("q%d", i))
		require.LessOrEqual(t, c.Len(), 4)
		c.AddAssistant(fmt.Sprintf("a%d", i))
		require.LessOrEqual(t, c.Len(), 4)
	}
	msgs := c.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "q5", msgs[0].Content)
	assert.Equal(t, "a5", msgs[1].Content)
	assert.Equal(t, "q6", msgs[2].Content)
	assert.Equal(t, roleAssistant, msgs[3].Role)
	assert.Equal(t, "a6", msgs[3].Content)
}

func TestConversationResetsAfterGap(t *testing.T) {
	c := NewConversation(10, 300*time.Second)
	t0 := time.Unix(5000, 0)
	c.AddUser(t0, "hello")
	c.AddAssistant("hi there")

	msgs := c.AddUser(t0.Add(299*time.Second), "still here")
	assert.Len(t, msgs, 3)
	c.AddAssistant("yes")

	msgs = c.AddUser(t0.Add(299*time.Second+301*time.Second), "back again")
	require.Len(t, msgs, 1)
	assert.Equal(t, "back again", msgs[0].Content)
}

func TestConversationMessagesIsCopy(t *testing.T) {
	c := NewConversation(3, 0)
	msgs := c.AddUser(time.Now(), "x")
	msgs[0].Content = "mutated"
	assert.Equal(t, "x", c.Messages()[0].Content)
}

func TestConversationConfigureShrinks(t *testing.T) {
	c := NewConversation(10, 0)
	for i := 0; i < 6; i++ {
		c.AddUser(time.Now(), fmt.Sprintf("%d", i))
	}
	c.Configure(2, 0)
	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "4", msgs[0].Content)
	c.Clear()
	assert.Zero(t, c.Len())
}
