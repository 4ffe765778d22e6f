package judge

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
)

// azureJudge calls an Azure OpenAI deployment through the azopenai SDK.
type azureJudge struct {
	client       *azopenai.Client
	deploymentID string
}

// NewAzureOpenAI creates a judge for an Azure OpenAI deployment.
func NewAzureOpenAI(endpoint, apiKey, deploymentID string) (Judge, error) {
	if endpoint == "" || deploymentID == "" {
		return nil, fmt.Errorf("azure judge needs endpoint and deployment")
	}
	keyCredential := azcore.NewKeyCredential(apiKey)
	client, err := azopenai.NewClientWithKeyCredential(endpoint, keyCredential, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure openai client: %w", err)
	}
	return &azureJudge{client: client, deploymentID: deploymentID}, nil
}

func (j *azureJudge) Name() string { return "azure" }

func (j *azureJudge) Judge(ctx context.Context, req Request) (*Judgment, error) {
	system, user, err := BuildMessages(req)
	if err != nil {
		return nil, err
	}

	resp, err := j.client.GetChatCompletions(
		ctx,
		azopenai.ChatCompletionsOptions{
			DeploymentName: to.Ptr(j.deploymentID),
			Messages: []azopenai.ChatRequestMessageClassification{
				&azopenai.ChatRequestUserMessage{
					Content: azopenai.NewChatRequestUserMessageContent(system + "\n\n" + user),
				},
			},
		},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("call azure openai: %w", err)
	}

	if len(resp.Choices) > 0 && resp.Choices[0].Message.Content != nil {
		return ParseJudgment(req.Task, *resp.Choices[0].Message.Content)
	}
	return nil, fmt.Errorf("azure openai returned no completion")
}
