package engine

import "fmt"

// intentPrompt asks the model to classify user input into the closed
// intent set. The contract is bare JSON: no markdown fences, no prose.
const intentPrompt = `Classify the following user input into one of these intent types:
- CAPTURE_TASKS: User wants to create or capture tasks/todos
- PLAN_DAY: User wants to plan their day or schedule
- PROCESS_MEETING_NOTES: User has meeting notes to process
- SEARCH_SUMMARIZE: User wants to search or summarize information
- BUILD_WORKFLOW: User wants to create automation
- UNKNOWN: Cannot classify or general query

User input: "%s"

Respond ONLY with valid JSON (no markdown, no explanation):
{"type": "<INTENT_TYPE>", "confidence": <0.0-1.0>, "parameters": {}, "raw_entities": ["entity1", "entity2"]}`

// repairSuffix is appended on the second attempt against the same model,
// after its first response failed to parse or validate.
const repairSuffix = `

IMPORTANT: Your previous response was not valid JSON.
Please respond with ONLY a valid JSON object, no markdown formatting, no explanation text.
Example: {"type": "CAPTURE_TASKS", "confidence": 0.9, "parameters": {}, "raw_entities": ["task1"]}`

// buildIntentPrompt renders the classification prompt for one attempt.
func buildIntentPrompt(userInput string, repair bool) string {
	prompt := fmt.Sprintf(intentPrompt, userInput)
	if repair {
		return prompt + repairSuffix
	}
	return prompt
}
