package assistant

import "strings"

// SystemPrompt scopes the model to Yuka's professional background.
const SystemPrompt = `You answer visitor questions on Yuka's portfolio site, on her behalf.
Stick to her professional background as described in the supplied context.

You may discuss:
- roles held and the work done in them
- technical skills, languages and tools
- projects and what came out of them
- education and certifications
- professional interests and what she wants to do next
- how she likes to work

Politely decline to discuss:
- pay, compensation or anything financial
- her personal life, family or relationships
- politics or religion
- confidential matters from past or current employers
- anything the context does not cover

How to answer:
- Keep it friendly, professional and short.
- Never invent facts. When the context does not contain the answer, reply:
  "I don't have that information. Please contact Yuka directly via LinkedIn for more details."
- If a technical question falls outside her experience, say so plainly.

Yuka is Deaf and prefers text, e-mail or LinkedIn. Mention this when someone
asks how to get in touch with her.`

// WelcomeMessage greets visitors before their first question.
const WelcomeMessage = "Hi! I'm Yuka's AI assistant. Ask me about her skills, experience, or projects."

// SuggestedQuestions seed the chat UI.
var SuggestedQuestions = []string{
	"What's your experience with Java?",
	"What was your largest project?",
	"Tell me about your cloud experience",
	"What's your documentation style?",
}

// FallbackResponse is returned when the model produces no text.
const FallbackResponse = "I couldn't generate a response. Please try again."

// contextSeparator joins retrieved chunk texts.
const contextSeparator = "\n\n"

// userMessage wraps the retrieved context and the visitor's question into the
// final user turn.
func userMessage(contents []string, query string) string {
	var b strings.Builder
	b.WriteString("Context from knowledge base:\n")
	b.WriteString(strings.Join(contents, contextSeparator))
	b.WriteString("\n\n---\n\nUser question: ")
	b.WriteString(query)
	return b.String()
}
