package qa

import (
	"fmt"
	"strings"
)

func systemPrompt(toolName string) string {
	return fmt.Sprintf(`You are an expert %s documentation assistant. Your task is to provide high-quality answers by:
1. SUMMARIZING the relevant information from the provided documentation context
2. EXTRACTING and HIGHLIGHTING any code examples that directly answer the question
3. STRUCTURING your answer in a clear format with proper sections
4. FOCUSING only on the parts of the context most relevant to the question

FORMAT your response as follows:
- Start with a direct, concise answer to the question
- Include code examples in properly formatted markdown code blocks
- Cite the specific documentation sections you used

If the provided context doesn't contain sufficient information, acknowledge this limitation clearly.`, capitalize(toolName))
}

func userPrompt(question, context string) string {
	return fmt.Sprintf("Question: %s\n\nDocumentation context:\n%s", question, context)
}

// noDocsFallback is returned when the namespace holds nothing relevant, or
// when the question could not be embedded at all.
func noDocsFallback(toolName string) string {
	return fmt.Sprintf("I don't have enough information about %s to answer your question. We'll add more documentation soon.", toolName)
}

// generationFallback is returned when retrieval worked but the generator
// failed. The user always gets a response.
func generationFallback(toolName string) string {
	return fmt.Sprintf("I'm still learning about %s. The documentation will be available soon.", toolName)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
