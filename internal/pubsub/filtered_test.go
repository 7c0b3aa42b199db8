package pubsub

import (
	"strings"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func failedOnly(outcome string) bool {
	return !strings.HasSuffix(outcome, ":validated")
}

func TestFilteredSender_Send(t *testing.T) {
	assert := assert_.New(t)

	ch := NewChannel[string](10)
	filtered := NewFilteredSender[string](ch, failedOnly)

	assert.True(filtered.Send("01:validated"))
	assert.True(filtered.Send("02:download-failed"))
	assert.True(filtered.Send("03:validated"))
	assert.True(filtered.Send("04:download-failed"))
	assert.Equal("02:download-failed", <-ch.Receive())
	assert.Equal("04:download-failed", <-ch.Receive())
}

func TestFilteredSender_Close(t *testing.T) {
	assert := assert_.New(t)

	ch := NewChannel[string](10)
	filtered := NewFilteredSender[string](ch, nil)
	filtered.Close()
	<-ch.Closed()
	assert.False(filtered.Send("01:download-failed"))

	inner := NewChannel[string](10)
	filtered = NewFilteredSender[string](inner, failedOnly)
	inner.Close()
	<-filtered.Closed()
	assert.False(filtered.Send("01:validated"), "dropped messages still fail once closed")
}

func TestFilteredSender_Subscriber(t *testing.T) {
	assert := assert_.New(t)

	pub := NewPublisher[string]()
	ch := NewChannel[string](1)
	assert.NoError(pub.AddSubscriber(NewFilteredSender[string](ch, failedOnly)))

	var received []string
	receiverDone := make(chan struct{})
	go func() {
		defer close(receiverDone)
		for v := range ch.Receive() {
			received = append(received, v)
		}
	}()
	for _, outcome := range []string{"01:validated", "02:download-failed", "03:validated", "04:failed-validation"} {
		pub.Send(outcome)
	}
	pub.Close()
	<-receiverDone
	assert.Equal([]string{"02:download-failed", "04:failed-validation"}, received)
}
