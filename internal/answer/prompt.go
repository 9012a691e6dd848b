package answer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/bookrag/internal/retrieval"
)

const (
	// UsableScore is the ranking score a result must exceed to be quoted.
	UsableScore = 0.1
	// MaxPassages caps the number of passages placed in the prompt.
	MaxPassages = 3
	// MinPassageChars is the cleaned length a passage must exceed.
	MinPassageChars = 50
)

// Persona names the assistant and the author whose books are searched.
type Persona struct {
	AssistantName string
	AuthorName    string
}

func (p Persona) assistant() string {
	if p.AssistantName == "" {
		return "a thoughtful reading companion"
	}
	return p.AssistantName
}

func (p Persona) author() string {
	if p.AuthorName == "" {
		return "the author"
	}
	return p.AuthorName
}

// Passage is a cleaned excerpt ready to quote.
type Passage struct {
	Book    string `json:"book"`
	Chapter string `json:"chapter"`
	Text    string `json:"text"`
}

// PDF extraction splits words in a few recurring places.
var artefactFixes = strings.NewReplacer(
	" - ", " ",
	"fo und", "found",
	"ze ro", "zero",
	"signific ant", "significant",
)

// CleanPassage removes the author's name, flattens newlines, collapses
// whitespace and repairs common extraction artefacts.
func CleanPassage(text, authorName string) string {
	if authorName != "" {
		text = strings.ReplaceAll(text, authorName, "")
	}
	text = strings.Join(strings.Fields(text), " ")
	text = artefactFixes.Replace(text)
	return strings.Join(strings.Fields(text), " ")
}

// UsablePassages keeps results scoring above UsableScore whose cleaned text
// is longer than MinPassageChars characters, in rank order, up to MaxPassages.
func UsablePassages(results []retrieval.Result, authorName string) []Passage {
	var out []Passage
	for _, r := range results {
		if r.Score <= UsableScore {
			continue
		}
		text := CleanPassage(r.Chunk.Text, authorName)
		if utf8.RuneCountInString(text) <= MinPassageChars {
			continue
		}
		out = append(out, Passage{
			Book:    orUnknown(r.Chunk.BookTitle),
			Chapter: orUnknown(r.Chunk.Chapter),
			Text:    text,
		})
		if len(out) == MaxPassages {
			break
		}
	}
	return out
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// FormatContext renders passages as prompt context.
func FormatContext(passages []Passage) string {
	parts := make([]string, len(passages))
	for i, p := range passages {
		parts[i] = fmt.Sprintf("From '%s' (Chapter: %s):\n%s", p.Book, p.Chapter, p.Text)
	}
	return strings.Join(parts, "\n\n")
}

// SystemPrompt describes the assistant's voice.
func SystemPrompt(p Persona) string {
	return fmt.Sprintf(`You are %s, a wise and thoughtful companion who helps readers integrate the ideas in %s's books into their lives.

When answering questions:
- Ground your response in the excerpts provided as context
- Synthesize the ideas in your own words instead of stringing quotes together
- Help the reader connect the concepts to their own experience
- Acknowledge nuance and complexity where the excerpts show it
- End with an insight or question that invites further reflection

Answer based only on the excerpts from %s's books.`, p.assistant(), p.author(), p.author())
}

// UserPrompt combines the question with the rendered context.
func UserPrompt(p Persona, question, excerpts string) string {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nRelevant excerpts from the books:\n\n")
	sb.WriteString(excerpts)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Please answer this question in the voice of %s, synthesizing the insights from these excerpts into a coherent, thoughtful response.", p.author())
	return sb.String()
}

// Fallback messages.
const (
	NoRelevantMessage = "I don't see that particular thread woven through these writings. Try asking about one of the themes the books explore in depth."
	NoContextMessage  = "That's a profound question, though I'm not finding the right passages to address it properly. Try rephrasing it or asking about a related theme."
)

// Fallback is returned when the answer service is unavailable.
func Fallback(question string) string {
	return fmt.Sprintf("I apologize, but I'm having trouble formulating a response right now. The question about %s touches on important themes in these books. Please try again shortly.", question)
}
