package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"webrag/internal/chunker"
	"webrag/internal/config"
	"webrag/internal/domain"
	embopenai "webrag/internal/embedding/openai"
	"webrag/internal/embedding/tfidf"
	"webrag/internal/graph"
	"webrag/internal/llm"
	chatollama "webrag/internal/llm/ollama"
	chatopenai "webrag/internal/llm/openai"
	"webrag/internal/loader"
	"webrag/internal/memory"
	"webrag/internal/search"
	"webrag/internal/service"
	"webrag/internal/summarizer"
	"webrag/internal/tui"
	vectormemory "webrag/internal/vectorstore/memory"
	"webrag/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath    string
		workflow   string
		sourceURL  string
		selector   string
		thread     string
		topK       int
		chat       bool
		streamMode string
		verbose    bool
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/webrag/config.yaml if not provided)")
	flag.StringVar(&workflow, "workflow", "", "Workflow to run: plain, analyzed, agent or react")
	flag.StringVar(&sourceURL, "url", "", "Web document to ingest (overrides config)")
	flag.StringVar(&selector, "selector", "", "CSS selector for text extraction (overrides config)")
	flag.StringVar(&thread, "thread", "", "Conversation thread id for multi-turn memory")
	flag.IntVar(&topK, "top-k", 0, "Number of chunks to retrieve (overrides config)")
	flag.BoolVar(&chat, "chat", false, "Start an interactive multi-turn chat session")
	flag.StringVar(&streamMode, "stream", "updates", "Stream mode: updates or values")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	question := flag.Arg(0)
	if question == "" && !chat {
		fmt.Fprintln(os.Stderr, "Usage: webrag [flags] \"your question\"")
		flag.PrintDefaults()
		os.Exit(1)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if sourceURL != "" {
		cfg.Source.URL = sourceURL
	}
	if selector != "" {
		cfg.Source.Selector = selector
	}
	if workflow != "" {
		cfg.Workflow.Type = workflow
	}
	if topK > 0 {
		cfg.Workflow.TopK = topK
	}

	// Assemble components
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "openai", "":
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			log.Fatalf("openai embedder init failed: %v", err)
		}
		emb = client
	case "tfidf":
		emb = tfidf.NewEmbedder()
	default:
		log.Fatalf("unknown embedder: %s", cfg.Embedder.Type)
	}

	var store domain.VectorStore
	switch cfg.VectorStore.Type {
	case "memory", "":
		store = vectormemory.NewStorage()
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			log.Fatalf("qdrant config missing")
		}
		store = qdrant.NewStorage(qdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			Collection: cfg.VectorStore.Qdrant.Collection,
			Timeout:    time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		})
	default:
		log.Fatalf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	var model llm.ChatModel
	switch cfg.Chat.Type {
	case "openai", "":
		client, err := chatopenai.NewClient(chatopenai.Config{
			BaseURL:   cfg.Chat.OpenAI.BaseURL,
			APIKeyEnv: cfg.Chat.OpenAI.APIKeyEnv,
			Model:     cfg.Chat.OpenAI.Model,
			Timeout:   time.Duration(cfg.Chat.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			log.Fatalf("openai chat init failed: %v", err)
		}
		model = client
	case "ollama":
		if cfg.Chat.Ollama == nil {
			log.Fatalf("ollama config missing")
		}
		model = chatollama.NewProvider(cfg.Chat.Ollama.BaseURL, cfg.Chat.Ollama.Model)
	default:
		log.Fatalf("unknown chat provider: %s", cfg.Chat.Type)
	}

	ingestor := service.NewIngestor(
		loader.NewWeb(),
		chunker.New(chunker.WithChunkSize(cfg.Chunker.ChunkSize), chunker.WithOverlap(cfg.Chunker.Overlap)),
		emb,
		store,
		summarizer.NewFrequency(),
		log,
	)

	ctx := context.Background()
	fmt.Printf("Ingesting %s ...\n", cfg.Source.URL)
	report, err := ingestor.Ingest(ctx, cfg.Source.URL, cfg.Source.Selector)
	if err != nil {
		log.Fatalf("ingest failed: %v", err)
	}
	fmt.Printf("Indexed %d chunks from %d blocks.\n", report.Chunks, report.Documents)

	deps := graph.Deps{
		Model:          model,
		Embedder:       emb,
		Store:          store,
		TopK:           cfg.Workflow.TopK,
		SectionFilter:  cfg.Workflow.SectionFilter,
		CustomTemplate: cfg.Workflow.CustomTemplate,
	}

	checkpointer := memory.NewInMemory()
	if thread == "" {
		thread = uuid.New().String()
	}

	if chat {
		runner := graph.NewAgent(deps).Compile(graph.WithCheckpointer(checkpointer), graph.WithLogger(log))
		m := tui.New(runner, thread, report.Summary)
		if _, err := tea.NewProgram(m).Run(); err != nil {
			log.Fatal(err)
		}
		return
	}

	var g *graph.Graph
	switch cfg.Workflow.Type {
	case "plain", "":
		g = graph.NewPlain(deps)
	case "analyzed":
		g = graph.NewAnalyzed(deps)
	case "agent":
		g = graph.NewAgent(deps)
	case "react":
		g = graph.NewReact(deps)
	default:
		log.Fatalf("unknown workflow: %s", cfg.Workflow.Type)
	}
	runner := g.Compile(graph.WithCheckpointer(checkpointer), graph.WithLogger(log))

	state := &graph.State{
		Question: question,
		Messages: []llm.Message{{Role: llm.RoleHuman, Content: question}},
	}

	opts := []graph.RunOption{graph.WithThread(thread)}
	if streamMode == "values" {
		opts = append(opts, graph.WithStreamMode(graph.StreamValues))
	}

	for ev := range runner.Stream(ctx, state, opts...) {
		if ev.Err != nil {
			log.Fatalf("workflow failed: %v", ev.Err)
		}
		printEvent(ev)
	}
}

// printEvent renders one streamed step as it completes.
func printEvent(ev graph.Event) {
	fmt.Printf("--- %s ---\n", ev.Node)
	if ev.State != nil {
		printSnapshot(ev.State)
		return
	}
	for key, value := range ev.Delta {
		switch v := value.(type) {
		case []llm.Message:
			for _, msg := range v {
				printMessage(msg)
			}
		case []domain.SearchResult:
			fmt.Printf("retrieved %d chunks\n", len(v))
			for _, r := range v {
				fmt.Printf("  [%s] score=%.3f %s\n", r.Chunk.Metadata.Section, r.Score, snippet(r.Chunk.Text))
			}
		case *search.Spec:
			fmt.Printf("search: query=%q section=%s\n", v.Query, v.Section)
		default:
			fmt.Printf("%s: %v\n", key, v)
		}
	}
}

func printSnapshot(s *graph.State) {
	if s.Search != nil {
		fmt.Printf("search: query=%q section=%s\n", s.Search.Query, s.Search.Section)
	}
	fmt.Printf("context: %d chunks\n", len(s.Context))
	if len(s.Messages) > 0 {
		printMessage(s.Messages[len(s.Messages)-1])
	}
	if s.Answer != "" {
		fmt.Printf("answer: %s\n", s.Answer)
	}
}

func printMessage(msg llm.Message) {
	fmt.Printf("[%s]: %s\n", msg.Role, msg.Content)
	for _, call := range msg.ToolCalls {
		fmt.Printf("  tool call: %s(%s)\n", call.Name, string(call.Args))
	}
}

func snippet(text string) string {
	const limit = 80
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
