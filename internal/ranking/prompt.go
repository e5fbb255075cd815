package ranking

import "github.com/askweb/askweb-go/internal/prompts"

// RankingPromptName is the prompt-library entry consulted before falling
// back to the built-in template.
const RankingPromptName = "RankingPrompt"

// defaultPromptTemplate is the built-in scoring prompt, used when the prompt
// library has no site- or type-specific override.
const defaultPromptTemplate = `Assign a score between 0 and 100 to the following item
based on how relevant it is to the user's question. Provide a short description of the item
that is relevant to the user's question, without mentioning the user's question.
Provide an explanation of the relevance of the item to the user's question,
without mentioning the user's question or the fact that it is relevant.
The user's question is: {request.query}. The item is: {item.description}`

// defaultPromptSchema is the structured answer the model is instructed to
// return for the built-in prompt.
var defaultPromptSchema = prompts.Schema{
	"score":       "integer between 0 and 100",
	"description": "short description of the item",
}
