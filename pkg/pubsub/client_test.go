package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicResourceName(t *testing.T) {
	assert.Equal(t, "projects/p1/topics/domain", topicResourceName("p1", "domain"))
	assert.Equal(t, "projects/other/topics/x", topicResourceName("p1", "projects/other/topics/x"))
	assert.Equal(t, "", topicResourceName("p1", "  "))
	assert.Equal(t, "", topicResourceName("", "domain"))
}
