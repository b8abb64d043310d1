package mcpserver

// ConceptContract describes the concept records compile_concepts accepts and
// the notes it produces from them.
const ConceptContract = `# Concept Record Contract

compile_concepts takes a JSON array of concept records. Every record is
validated before anything is written; one bad record rejects the batch.

## Record

` + "```" + `json
[
  {
    "title": "Random Walk Theory",
    "summary": "Prices move unpredictably, a consequence of the [[Efficient Market Hypothesis]].",
    "examples": "Dart-throwing monkeys matching fund managers.",
    "tags": ["market-theory"]
  }
]
` + "```" + `

## Rules

1. **title** and **summary** are required and must not be blank.
2. **tags** is a list of strings. A leading ` + "`" + `#` + "`" + ` is dropped and inner spaces become
   hyphens; the configured default tags are always added first.
3. **examples** is optional. Notes without examples say so explicitly. Any other
   key, such as a misspelled ` + "`" + `exampels` + "`" + `, rejects the batch.
4. **Links** to other concepts use ` + "`" + `[[Concept Title]]` + "`" + ` inside the summary. Targets are
   normalized the same way titles are, so ` + "`" + `[[capm]]` + "`" + ` and ` + "`" + `[[CAPM]]` + "`" + ` point to one note.
   Use ` + "`" + `[[Target|display text]]` + "`" + ` when the wording differs from the title.
5. **One note per concept.** Titles are normalized to title case with illegal filename
   characters removed. Leading and trailing dots are dropped and very long titles are
   cut to 200 bytes. A title that normalizes to an existing note is skipped
   unless ` + "`" + `overwrite` + "`" + ` is set; within one batch the first record wins.
6. Links whose target has no note are reported as unresolved in the run summary.
   Use list_dangling_links to see them across the whole vault.

## Generated note

` + "```" + `markdown
---
created: 2024-03-01 12:00:00
in: "[[A Random Walk Down Wall Street]]"
chapter: "Chapter 3"
tags: [finance, investing, market-theory]
---

# Random Walk Theory

## Summary
Prices move unpredictably, a consequence of the [[Efficient Market Hypothesis]].

## Examples and Elaboration
Dart-throwing monkeys matching fund managers.

## Related Concepts
- [[Efficient Market Hypothesis]]

**Source:** [[A Random Walk Down Wall Street]]
` + "```" + `
`
