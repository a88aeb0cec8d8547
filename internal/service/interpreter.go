package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kestrelsec/agentgate/api/schemas"
)

// interpreterSystemPrompt instructs the model to turn a free-text user
// request into the structured AgentPrompt the control agent executes.
const interpreterSystemPrompt = `Your task is to analyze the input from the user and generate a command based on the user's input.
Users will provide you with a prompt that describes what they want the AI browser agent to do.
You need to generate a command that the AI agent can execute to fulfill the user's request.
The command must be a JSON object with the following keys:
{
    "user_prompt": "A clear, sequential set of steps that the control agent will execute. It must start with logging into the website, include all user interactions (clicks, searches, etc.), and end with an instruction to verify the check condition. If the user describes downloading a file and doing something with its contents (e.g., checking for values, extracting data, or making comparisons), it must include a reference to using the 'file processing tool' to perform that step. If a screenshot is requested then instruct the agent to take a screenshot. It should not be a list.",
    "target_information": "Describe what the screenshot should capture. This should clearly indicate the visual goal that serves as proof. If the user does not want to take a screenshot, this must be empty",
    "check_information": "Describe what the system should check for to determine if the control has passed or failed. This is a logical or visual confirmation step. If the user does not want to check or verify any information, this must be empty",
    "username": "the username for login to the website. If the user does not provide a username, this can be empty",
    "password": "the password of the username to login to the website. If the user does not provide a password, this can be empty",
    "login_instructions": "the instructions for the AI agent to login to the website. If the user does not provide login instructions, this can be empty",
    "mfa_secret": "the MFA secret for the username to login to the website, this is optional and can be empty"
}
On user_prompt, you should tell the AI agent when to verify information on the website based on the user input.
You should also tell the AI agent when to take a screenshot of the website based on the user input.
You should not put login instructions in the user_prompt, but rather in login_instructions. You only need to say "login to the website" in the user_prompt if the login is required.
user_prompt should be very clear and specific about each step the AI agent needs to take.
DO NOT add or remove any information that requires the AI agent to click, scroll, or interact with the website.`

// Interpreter turns free-text commands into structured agent prompts.
type Interpreter struct {
	client schemas.LLMClient
	logger *zap.Logger
}

// NewInterpreter wires an interpreter to an LLM handle.
func NewInterpreter(client schemas.LLMClient, logger *zap.Logger) *Interpreter {
	return &Interpreter{
		client: client,
		logger: logger.Named("interpreter"),
	}
}

// Interpret runs the interpretation. Braces in the user input are doubled so
// free text cannot splice into the prompt template.
func (i *Interpreter) Interpret(ctx context.Context, userInput string) (schemas.AgentPrompt, error) {
	sanitized := strings.NewReplacer("{", "{{", "}", "}}").Replace(userInput)

	raw, err := i.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: interpreterSystemPrompt,
		UserPrompt:   fmt.Sprintf("The information content from the user is: %s.", sanitized),
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		return schemas.AgentPrompt{}, fmt.Errorf("failed to generate command interpretation: %w", err)
	}

	var prompt schemas.AgentPrompt
	if err := json.Unmarshal([]byte(raw), &prompt); err != nil {
		i.logger.Error("Interpreter returned non-conforming output", zap.Error(err))
		return schemas.AgentPrompt{}, fmt.Errorf("failed to decode command interpretation: %w", err)
	}
	return prompt, nil
}
