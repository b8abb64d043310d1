package analysis

import (
	"bytes"
	"text/template"
)

var promptTmpl = template.Must(template.New("analysis").Parse(`You are an expert in knowledge management, specifically the Zettelkasten and atomic note-taking method. Your task is to analyze the following text from the book "{{.BookTitle}}".

Perform the following actions:

1. Read the text and identify all distinct, core concepts, theories, or key terms.
2. For each concept, write a concise, self-contained summary (an "atomic note").
3. Within each summary, identify where other concepts you've found are mentioned and wrap their exact names in [[wikilinks]].
4. Optionally add an "examples" string with concrete examples or elaboration taken from the text.
5. Return the output as a single JSON array of objects, where each object represents a single atomic note and has the keys "title", "summary", "tags" and optionally "examples", and no other keys.

Example JSON output:
[
  {
    "title": "Random Walk Theory",
    "summary": "The Random Walk Theory posits that stock market prices evolve according to a random walk and thus cannot be predicted. This idea is a cornerstone of the [[Efficient Market Hypothesis]] and challenges the effectiveness of [[Technical Analysis]].",
    "tags": ["market-theory", "stock-prices"]
  },
  {
    "title": "Efficient Market Hypothesis",
    "summary": "The Efficient Market Hypothesis asserts that financial markets are informationally efficient, meaning prices fully reflect all available information. This theory is built upon the [[Random Walk Theory]].",
    "tags": ["market-efficiency", "investment-theory"]
  }
]

Guidelines:
- Each note should be self-contained and understandable on its own
- Use [[wikilinks]] to connect related concepts within summaries
- Tags should be lowercase and use hyphens instead of spaces
- Focus on the most important and distinct concepts
- Avoid creating notes for very basic or common terms unless they are specifically defined in the text
- Keep summaries concise but informative (2-4 sentences)
- Respond with the JSON array only, with no text outside it

Now, analyze this text:

{{.Text}}`))

type promptData struct {
	BookTitle string
	Text      string
}

func renderPrompt(bookTitle, text string) (string, error) {
	if bookTitle == "" {
		bookTitle = "the source document"
	}
	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, promptData{BookTitle: bookTitle, Text: text}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
