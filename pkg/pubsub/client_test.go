package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/repairdesk-backend/pkg/config"
)

func TestResourceNames(t *testing.T) {
	c := &Client{projectID: "repairdesk-dev"}

	assert.Equal(t, "projects/repairdesk-dev/topics/request-events", c.topicResourceName(" request-events "))
	assert.Equal(t, "projects/other/topics/x", c.topicResourceName("projects/other/topics/x"))
	assert.Empty(t, c.topicResourceName("  "))

	var nilClient *Client
	assert.Empty(t, nilClient.topicResourceName("request-events"))
	assert.Nil(t, nilClient.Publisher("request-events"))
	assert.NoError(t, nilClient.Close())
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	names := topicNames(config.PubSubConfig{RequestsTopic: "requests", NotificationTopic: " "})
	assert.Equal(t, []string{"requests"}, names)
	assert.Empty(t, topicNames(config.PubSubConfig{}))
}
