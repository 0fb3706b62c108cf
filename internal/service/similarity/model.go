package similarity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

const modelSystemPrompt = `You are an identity verification assistant. Compare the two provided facial images and respond with strict JSON containing keys similarity (float 0-1), same_person (boolean), and explanation (string describing visual evidence). Output the JSON object only.`

const modelUserPrompt = `Evaluate how similar the two faces are and decide if they belong to the same person. Explain distinct facial traits, lighting, pose, and any discrepancies.`

// ModelStrategy 让多模态大模型判断两张人脸是否为同一人。
type ModelStrategy struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewModelStrategy compiles the prompt → chat model chain.
func NewModelStrategy(ctx context.Context, chatModel model.ChatModel) (*ModelStrategy, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is nil")
	}

	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(modelSystemPrompt),
		schema.MessagesPlaceholder("images", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile similarity chain: %w", err)
	}
	return &ModelStrategy{chain: runnable}, nil
}

func (s *ModelStrategy) Name() string { return "model" }

func (s *ModelStrategy) Compare(ctx context.Context, first, second Image) (Outcome, error) {
	user := &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: modelUserPrompt},
			{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: first.DataURI()}},
			{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: second.DataURI()}},
		},
	}

	msg, err := s.chain.Invoke(ctx, map[string]any{
		"images": []*schema.Message{user},
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to run similarity chain: %w", err)
	}

	payload, err := parseModelOutput(msg.Content)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Similarity:  liveness.Clamp(*payload.Similarity),
		Approved:    *payload.SamePerson,
		SamePerson:  *payload.SamePerson,
		Explanation: strings.TrimSpace(payload.Explanation),
	}, nil
}

type modelPayload struct {
	Similarity  *float64 `json:"similarity"`
	SamePerson  *bool    `json:"same_person"`
	Explanation string   `json:"explanation"`
}

// parseModelOutput 从模型回复中截取 JSON 对象并校验必需字段。
func parseModelOutput(content string) (*modelPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("model returned no json object")
	}

	payload := &modelPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, fmt.Errorf("model returned invalid JSON: %w", err)
	}
	if payload.Similarity == nil || payload.SamePerson == nil {
		return nil, fmt.Errorf("model response is missing required fields")
	}
	return payload, nil
}
