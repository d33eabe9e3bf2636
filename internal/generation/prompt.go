package generation

import (
	"fmt"
	"strings"
)

const (
	summaryInstruction = "Summarize the following text concisely, focusing on the main plot points, characters, and setting.\n\n"

	reviewInstruction = "You are an experienced book editor. Review the following chapter for clarity, coherence, grammar, spelling, " +
		"punctuation, consistency in tone, and overall readability. " +
		"Provide actionable feedback and specific suggestions for improvement. " +
		"Give output in plain text, not markdown, and do not highlight words with asterisks. " +
		"Structure your feedback clearly, using bullet points or numbered lists, and reference specific paragraphs or sentences where possible.\n\n"

	instructionSystem = "You are an expert prompt engineer specializing in crafting precise and effective " +
		"instructions for AI text generation models. Your goal is to generate a concise, " +
		"clear, and unique prompt instruction that guides an AI writer to rewrite text. " +
		"The instruction should focus on style, tone, descriptive detail, conciseness, or overall impact. " +
		"Provide ONLY the prompt instruction text, without any conversational filler, explanations, " +
		"or examples. The instruction should implicitly ask the AI to rewrite the following text. " +
		"Ensure the instruction is distinct from common, generic prompts."

	// snippetLimit bounds the source excerpt shown to the instruction generator.
	snippetLimit = 500
)

// AssembleRewritePrompt prefixes content with the rewrite instruction.
func AssembleRewritePrompt(instruction, content string) string {
	var b strings.Builder
	b.WriteString(instruction)
	if !strings.HasSuffix(instruction, "\n\n") {
		b.WriteString("\n\n")
	}
	b.WriteString("Text to rewrite:\n\n")
	b.WriteString(content)
	return b.String()
}

// AssembleReviewPrompt asks for editorial feedback on content.
func AssembleReviewPrompt(content string) string {
	return reviewInstruction + "Here is the content to review:\n\n" + content
}

// AssembleSummaryPrompt asks for a plot summary of content.
func AssembleSummaryPrompt(content string) string {
	return summaryInstruction + content
}

// InstructionRequest is the context given to the instruction generator.
type InstructionRequest struct {
	// Snippet is an excerpt of the source text.
	Snippet string

	// Feedback describes what went wrong with previous attempts.
	Feedback string

	// PreviousInstruction is the template that performed poorly, if known.
	PreviousInstruction string

	// Summary is a summary of the chapter for thematic consistency.
	Summary string
}

// AssembleInstructionPrompt builds the user prompt for instruction generation.
func AssembleInstructionPrompt(req InstructionRequest) string {
	var b strings.Builder

	snippet := []rune(req.Snippet)
	if len(snippet) > snippetLimit {
		snippet = snippet[:snippetLimit]
	}
	b.WriteString(fmt.Sprintf("Here's a snippet of the original content for context:\n\n%s...\n\n\n", string(snippet)))

	if req.Summary != "" {
		b.WriteString(fmt.Sprintf("Overall chapter summary/theme: %q\n\n", req.Summary))
	}
	if req.Feedback != "" {
		b.WriteString(fmt.Sprintf("Previous attempts received the following feedback: %s\n", req.Feedback))
	}
	if prev := strings.TrimSpace(req.PreviousInstruction); prev != "" {
		b.WriteString(fmt.Sprintf("The prompt that performed poorly was:\n\n%q\n\n", prev))
		b.WriteString("Generate a NEW and DIFFERENT prompt instruction for rewriting this text, aiming to improve based on the feedback and avoiding the previous style.\n")
	} else {
		b.WriteString("Generate a new and creative prompt instruction for rewriting text, focusing on a unique stylistic or tonal transformation.\n")
	}

	b.WriteString("New Prompt Instruction (start directly with the instruction):")
	return b.String()
}
