package gateway

import (
	"encoding/json"
	"testing"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
)

// recordingConnection test double capturing broadcast frames
type recordingConnection struct {
	id     string
	frames [][]byte
	full   bool
}

func (c *recordingConnection) ID() string {
	return c.id
}

func (c *recordingConnection) Send(frame []byte) bool {
	if c.full {
		return false
	}
	c.frames = append(c.frames, frame)
	return true
}

func TestHub(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut, err := GetHub("ut-hub")
	assert.Nil(err)

	// Case 1: broadcasting with zero clients is a silent no-op
	{
		assert.Equal(0, uut.ConnectionCount())
		uut.Broadcast("new_diary_created", []byte(`"diary-00"`))
	}

	client1 := &recordingConnection{id: "client-1"}
	client2 := &recordingConnection{id: "client-2"}

	// Case 2: registered clients all receive each broadcast
	{
		uut.OnConnect(client1)
		uut.OnConnect(client2)
		assert.Equal(2, uut.ConnectionCount())

		uut.Broadcast("new_diary_created", []byte(`"diary-01"`))
		assert.Len(client1.frames, 1)
		assert.Len(client2.frames, 1)

		var frame EventFrame
		assert.Nil(json.Unmarshal(client1.frames[0], &frame))
		assert.Equal("new_diary_created", frame.Event)
		assert.Equal(json.RawMessage(`"diary-01"`), frame.Payload)
	}

	// Case 3: one slow client never stalls delivery to the others
	{
		client1.full = true
		uut.Broadcast("diary_id_updated", []byte(`"diary-01"`))
		assert.Len(client1.frames, 1)
		assert.Len(client2.frames, 2)
	}

	// Case 4: disconnected clients stop receiving
	{
		uut.OnDisconnect(client2.ID())
		assert.Equal(1, uut.ConnectionCount())
		client1.full = false
		uut.Broadcast("diary_id_deleted", []byte(`"diary-01"`))
		assert.Len(client1.frames, 2)
		assert.Len(client2.frames, 2)
	}

	// Case 5: inbound client frames are accepted without routing
	{
		uut.OnClientMessage(client1.ID(), []byte("client chatter"))
	}
}
