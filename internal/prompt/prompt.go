// Package prompt assembles the prompts used by the answer-generation steps.
package prompt

import (
	"strings"

	"webrag/internal/domain"
)

// ClosingPhrase ends every answer produced with the custom template.
const ClosingPhrase = "thanks for asking!"

// RAG builds the question-answering prompt from retrieved context.
func RAG(question string, results []domain.SearchResult) string {
	var b strings.Builder
	b.WriteString("You are an assistant for question-answering tasks. ")
	b.WriteString("Use the following pieces of retrieved context to answer the question. ")
	b.WriteString("If you don't know the answer, say that you don't know. ")
	b.WriteString("Use three sentences maximum and keep the answer concise.\n\n")
	writeContext(&b, results)
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

// RAGCustom is the custom-template variant: same contract plus a fixed
// closing phrase appended by the model.
func RAGCustom(question string, results []domain.SearchResult) string {
	var b strings.Builder
	b.WriteString("Use the following pieces of context to answer the question at the end. ")
	b.WriteString("If you don't know the answer, just say that you don't know, don't try to make up an answer. ")
	b.WriteString("Use three sentences maximum and keep the answer as concise as possible. ")
	b.WriteString("Always say \"" + ClosingPhrase + "\" at the end of the answer.\n\n")
	writeContext(&b, results)
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nHelpful Answer:")
	return b.String()
}

// AgentSystem builds the generation-step system prompt from the content of
// the tool messages produced in this turn.
func AgentSystem(toolContent string) string {
	var b strings.Builder
	b.WriteString("You are an assistant for question-answering tasks. ")
	b.WriteString("Use the following pieces of retrieved context to answer the question. ")
	b.WriteString("If you don't know the answer, say that you don't know. ")
	b.WriteString("Use three sentences maximum and keep the answer concise.\n\n")
	b.WriteString(toolContent)
	return b.String()
}

// ContextBlob renders retrieved chunks the way the retrieve tool reports
// them back to the model.
func ContextBlob(results []domain.SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Source: ")
		b.WriteString(r.Chunk.Metadata.Source)
		b.WriteString("\nContent: ")
		b.WriteString(r.Chunk.Text)
	}
	return b.String()
}

func writeContext(b *strings.Builder, results []domain.SearchResult) {
	b.WriteString("Context:\n")
	b.WriteString(ContextBlob(results))
	b.WriteString("\n")
}
