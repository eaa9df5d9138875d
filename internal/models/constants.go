package models

const (
	ContextSeparator = "\n---\n"

	// SystemPrompt keeps generation grounded in retrieved context.
	SystemPrompt = "You are a helpful assistant. Use the provided context to answer the query."
)

var (
	// CondensePromptTemplate rewrites a follow-up question into a standalone
	// one. Placeholders: chat history, follow-up question.
	CondensePromptTemplate = "Given the following conversation and a follow-up question, rephrase the follow-up question to be " +
		"a standalone question, in its original language. Chat History: %s Follow Up Input: %s " +
		"Standalone question:"

	// SummaryPromptTemplate produces the per-report paragraph used by the
	// comparison flow. Placeholder: full report text.
	SummaryPromptTemplate = "Summarize the following market research report in a concise paragraph:\n\n%s"

	// ComparePromptTemplate contrasts two report summaries. Placeholders:
	// first summary, second summary.
	ComparePromptTemplate = "Compare the following two market research reports and highlight their similarities, differences, " +
		"and key insights:\n\nReport 1 Summary:\n%s\n\nReport 2 Summary:\n%s\n\nComparison:"

	// GroundedPromptTemplate is the user message for retrieval-grounded
	// answers. Placeholders: joined context, query.
	GroundedPromptTemplate = "Context:\n%s\nQuery: %s"
)
