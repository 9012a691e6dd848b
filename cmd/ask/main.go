// Command ask is an interactive terminal question loop over a chunk store.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/dgallion1/bookrag/internal/answer"
	"github.com/dgallion1/bookrag/internal/book"
	"github.com/dgallion1/bookrag/internal/config"
	"github.com/dgallion1/bookrag/internal/llm"
	"github.com/dgallion1/bookrag/internal/retrieval"
	"github.com/dgallion1/bookrag/internal/store"
	"github.com/dgallion1/bookrag/internal/tui"
)

// port adapts the retriever and answer service to the TUI.
type port struct {
	chunks    []book.Chunk
	retriever *retrieval.Retriever
	answers   *answer.Service
	topK      int
}

func (p *port) Search(query string) []retrieval.Result {
	return p.retriever.Retrieve(query, p.chunks, p.topK)
}

func (p *port) Ask(ctx context.Context, question string, results []retrieval.Result) answer.Reply {
	return p.answers.Answer(ctx, question, results)
}

func summary(meta store.Metadata) string {
	return fmt.Sprintf("%d chunks from %d books (%d words)", meta.TotalChunks, len(meta.BooksProcessed), meta.TotalWords)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	dataDir := flag.String("data", cfg.DataDir, "Chunk store directory")
	topK := flag.Int("k", cfg.TopK, "Passages retrieved per question")
	logFile := flag.String("log", "", "Write logs to this file")
	flag.Parse()

	// The terminal belongs to the TUI; logs go to a file or nowhere.
	var w io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	log := slog.New(slog.NewJSONHandler(w, nil))

	st, err := store.Open(*dataDir, cfg.EmbeddingDimensions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open chunk store %s: %v\n", *dataDir, err)
		os.Exit(1)
	}
	if st.Len() == 0 {
		fmt.Fprintf(os.Stderr, "no chunks in %s; run the ingest command first\n", *dataDir)
		os.Exit(1)
	}

	var gen answer.Generator
	if cfg.LLMEnabled() {
		client := llm.NewClient(llm.ClientConfig{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL})
		gen = answer.NewOpenAIGenerator(client, cfg.ChatModel, nil)
	}
	persona := answer.Persona{AssistantName: cfg.AssistantName, AuthorName: cfg.AuthorName}

	p := &port{
		chunks:    st.Chunks(),
		retriever: retrieval.New(nil),
		answers:   answer.NewService(gen, persona, log),
		topK:      max(*topK, 1),
	}
	log.Info("chunk store loaded", "dir", *dataDir, "chunks", st.Len())

	if _, err := tea.NewProgram(tui.New(p, summary(st.Metadata())), tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "ask: %v\n", err)
		os.Exit(1)
	}
}
