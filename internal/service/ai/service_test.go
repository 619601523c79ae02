package ai

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admindash/internal/config"
)

type recordingModel struct {
	input    []*schema.Message
	deadline bool
	reply    *schema.Message
	err      error
}

func (m *recordingModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.input = input
	_, m.deadline = ctx.Deadline()
	if m.err != nil {
		return nil, m.err
	}
	return m.reply, nil
}

func TestCompleteBuildsPrompt(t *testing.T) {
	fake := &recordingModel{reply: schema.AssistantMessage("There are 2 users.", nil)}
	asst := NewAssistant(fake, config.AssistantConfig{HistoryLimit: 2}, time.Minute, nil)

	resp, err := asst.Complete(context.Background(), Request{
		Sample:           "How many users are there in my account?",
		UserData:         json.RawMessage(`[{"id":1,"name":"Ada"},{"id":2,"name":"Bob"}]`),
		PastUserMessages: []string{"first", "second", "", "third"},
	})
	require.NoError(t, err)
	assert.Equal(t, "There are 2 users.", resp.Content)
	assert.True(t, fake.deadline)

	// last two history entries are "" and "third"; the blank one is dropped
	require.Len(t, fake.input, 4)
	assert.Equal(t, schema.System, fake.input[0].Role)
	assert.Equal(t, DefaultSystemPrompt, fake.input[0].Content)
	assert.Equal(t, schema.System, fake.input[1].Role)
	assert.Contains(t, fake.input[1].Content, `"name":"Bob"`)
	assert.Equal(t, schema.User, fake.input[2].Role)
	assert.Equal(t, "third", fake.input[2].Content)
	assert.Equal(t, schema.User, fake.input[3].Role)
	assert.Equal(t, "How many users are there in my account?", fake.input[3].Content)
}

func TestCompleteWithoutUserData(t *testing.T) {
	fake := &recordingModel{reply: schema.AssistantMessage("hi", nil)}
	asst := NewAssistant(fake, config.AssistantConfig{SystemPrompt: "be brief"}, 0, nil)

	_, err := asst.Complete(context.Background(), Request{Sample: "hello", UserData: json.RawMessage("null")})
	require.NoError(t, err)
	require.Len(t, fake.input, 2)
	assert.Equal(t, "be brief", fake.input[0].Content)
	assert.False(t, fake.deadline)
}

func TestCompleteErrors(t *testing.T) {
	cause := errors.New("upstream 502")
	asst := NewAssistant(&recordingModel{err: cause}, config.AssistantConfig{}, 0, nil)

	_, err := asst.Complete(context.Background(), Request{Sample: "  "})
	require.Error(t, err)

	_, err = asst.Complete(context.Background(), Request{Sample: "hello"})
	require.ErrorIs(t, err, cause)

	asst = NewAssistant(&recordingModel{}, config.AssistantConfig{}, 0, nil)
	_, err = asst.Complete(context.Background(), Request{Sample: "hello"})
	require.Error(t, err)
}

func TestNewChatModelRejectsUnknownProvider(t *testing.T) {
	_, err := NewChatModel(context.Background(), "mystery", config.ProviderConfig{Model: "m"}, "")
	require.Error(t, err)

	_, err = NewChatModel(context.Background(), "openai", config.ProviderConfig{}, "")
	require.Error(t, err)
}
