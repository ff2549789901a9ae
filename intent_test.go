package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectCategory(t *testing.T) {
	cases := []struct {
		text string
		want Category
	}{
		{"What time is it?", CategoryTime},
		{"tell me the time please", CategoryTime},
		{"Set the volume to fifty", CategoryVolume},
		{"lower volume", CategoryVolume},
		{"what day is it today", CategoryDate},
		{"what's the date", CategoryDate},
		{"take a picture", CategoryCamera},
		{"what do you see", CategoryCamera},
		{"please shut down the robot", CategoryShutdown},
		{"power off", CategoryShutdown},
		{"why is the sky blue", CategoryNone},
		{"", CategoryNone},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectCategory(tc.text))
		})
	}
}

func TestCategoryNeedsInference(t *testing.T) {
	assert.True(t, CategoryVolume.needsInference())
	assert.True(t, CategoryShutdown.needsInference())
	assert.False(t, CategoryTime.needsInference())
	assert.False(t, CategoryCamera.needsInference())
	assert.False(t, CategoryNone.needsInference())
	assert.Equal(t, "none", Category(99).String())
}
