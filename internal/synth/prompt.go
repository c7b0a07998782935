package synth

import "strings"

// promptTemplate asks for an answer grounded in one chunk plus a self-rated
// score. parseReply depends on the "Answer:" and "Score:" labels.
const promptTemplate = `Use the following piece of context to answer the question at the end. If you don't know the answer, just say that you don't know; don't try to make up an answer.

In addition to giving an answer, also return a score of how fully it answered the user's question. Use this format exactly:

Answer: [answer here]
Score: [integer from 0 to 100]

How to determine the score:
- Higher is a better answer.
- Better responds fully to the asked question, with sufficient level of detail.
- If you do not know the answer based on the context, the score should be 0.
- Don't be overconfident!

Context:
---------
{context}
---------

Question: {question}
Helpful Answer:`

// buildPrompt fills promptTemplate. The replacer runs once so braces inside
// the context or question are left alone.
func buildPrompt(question, chunkText string) string {
	r := strings.NewReplacer("{context}", chunkText, "{question}", strings.TrimSpace(question))
	return r.Replace(promptTemplate)
}
