// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cache"
	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/generator"
	"github.com/hyperjump/kotae/internal/pipeline"
	"github.com/hyperjump/kotae/internal/retriever"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "kotae server" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded (for saving, etc.).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "delete":
		runDelete()
	case "search":
		runSearch()
	case "ask":
		runAsk()
	case "rfp":
		runRFP()
	case "answer":
		runAnswer()
	case "answers":
		runAnswers()
	case "regenerate":
		runRegenerate()
	case "rebuild":
		runRebuild()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (directory changes, file ingestion, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	p := components.Pipeline
	exts := cfg.Watch.Extensions
	watchOpts := []watcher.WatcherOption{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		exts,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			if _, err := p.IngestFile(context.Background(), path, exts); err != nil {
				logger.Warn("watch ingest file failed", zap.String("path", path), zap.Error(err))
			}
		},
		func(path string) {
			if err := p.DeleteDocument(context.Background(), fileid.FileDocID(path)); err != nil {
				logger.Warn("watch delete by path failed", zap.String("path", path), zap.Error(err))
			}
		},
		watchOpts...,
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	watchSvc.SyncExistingFiles()

	srv := server.NewServer(p, components.Storage, cfg, resolvedConfigPath, watchSvc, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if cfg.Storage.VectorIndexPath != "" && components.Index != nil {
		if err := components.Index.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed", zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
		}
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	components, cfg := mustInitialize(*configPath)
	defer components.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		exts := cfg.Watch.Extensions
		if exts == nil {
			exts = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".xlsx"}
		}
		n, err := components.Pipeline.IngestDirectory(ctx, path, exts)
		if err != nil {
			fmt.Printf("Ingesting directory failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Ingested %d file(s) from %s\n", n, path)
		return
	}
	// Single file: no extension filter
	doc, err := components.Pipeline.IngestFile(ctx, path, nil)
	if err != nil {
		fmt.Printf("Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	if doc == nil {
		fmt.Println("File unchanged; skipped")
		return
	}
	fmt.Printf("Document ingested: %s (%d chunks)\n", doc.ID, doc.ChunkCount)
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	components, _ := mustInitialize(*configPath)
	defer components.Close()

	if err := components.Pipeline.DeleteDocument(context.Background(), docID); err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

// buildQuery joins all positional args with spaces so multi-word queries work
// the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "kotae search \"query\" -output json"
// would otherwise leave -output unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	topK := fs.Int("top-k", 0, "number of chunks to retrieve (0 = config default)")
	threshold := fs.Float64("threshold", -1, "minimum similarity score (negative = config default)")
	outputFormat := fs.String("output", "text", "output format: text (human-readable) or json (parseable)")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	queryStr := buildQuery(fs.Args())
	if queryStr == "" {
		fmt.Println("Usage: kotae search [flags] <query>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	components, _ := mustInitialize(*configPath)
	defer components.Close()

	results, err := components.Pipeline.SearchChunks(context.Background(), queryStr, *topK, *threshold)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, queryStr, results, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	questionContext := fs.String("context", "", "additional context for the question")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	questionStr := buildQuery(fs.Args())
	if questionStr == "" {
		fmt.Println("Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	components, _ := mustInitialize(*configPath)
	defer components.Close()
	requireGenerator(components)

	ctx := context.Background()
	name := fmt.Sprintf("ask %s", time.Now().Format("2006-01-02 15:04:05"))
	_, questions, err := components.Pipeline.CreateRFP(ctx, name, "", []pipeline.QuestionInput{
		{Text: questionStr, Context: *questionContext},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create question: %v\n", err)
		os.Exit(1)
	}
	ans, err := components.Pipeline.AnswerQuestion(ctx, questions[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Answer generation failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, ans, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// readQuestionsFile reads one question per line, skipping blank lines and
// lines starting with "#".
func readQuestionsFile(path string) ([]pipeline.QuestionInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var inputs []pipeline.QuestionInput
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		inputs = append(inputs, pipeline.QuestionInput{Text: line})
	}
	return inputs, nil
}

func runRFP() {
	fs := flag.NewFlagSet("rfp", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	description := fs.String("description", "", "RFP description")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 2 {
		fmt.Println("Usage: kotae rfp [flags] <name> <questions-file>")
		fmt.Println("  questions-file has one question per line; blank lines and # comments are skipped")
		os.Exit(1)
	}
	name := fs.Arg(0)
	inputs, err := readQuestionsFile(fs.Arg(1))
	if err != nil {
		fmt.Printf("Failed to read questions: %v\n", err)
		os.Exit(1)
	}

	components, _ := mustInitialize(*configPath)
	defer components.Close()

	rfp, questions, err := components.Pipeline.CreateRFP(context.Background(), name, *description, inputs)
	if err != nil {
		fmt.Printf("Failed to create RFP: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("RFP created: %s (%d questions)\n", rfp.ID, len(questions))
	fmt.Printf("Run \"kotae answer %s\" to generate answers\n", rfp.ID)
}

func runAnswer() {
	fs := flag.NewFlagSet("answer", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae answer [flags] <rfp-id>")
		os.Exit(1)
	}
	rfpID := fs.Arg(0)
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	components, _ := mustInitialize(*configPath)
	defer components.Close()
	requireGenerator(components)

	summary, err := components.Pipeline.GenerateAnswers(context.Background(), rfpID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Batch generation failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteBatchSummary(os.Stdout, summary, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runAnswers() {
	fs := flag.NewFlagSet("answers", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae answers [flags] <rfp-id>")
		os.Exit(1)
	}
	rfpID := fs.Arg(0)
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	components, _ := mustInitialize(*configPath)
	defer components.Close()

	ctx := context.Background()
	answers, err := components.Storage.GetAnswersByRFP(ctx, rfpID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load answers: %v\n", err)
		os.Exit(1)
	}
	questions, err := components.Storage.GetQuestionsByRFP(ctx, rfpID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load questions: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswers(os.Stdout, answers, questions, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runRegenerate() {
	fs := flag.NewFlagSet("regenerate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae regenerate [flags] <question-id>")
		os.Exit(1)
	}
	questionID := fs.Arg(0)
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	components, _ := mustInitialize(*configPath)
	defer components.Close()
	requireGenerator(components)

	ans, err := components.Pipeline.RegenerateAnswer(context.Background(), questionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Regeneration failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, ans, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runRebuild() {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	components, _ := mustInitialize(*configPath)
	defer components.Close()

	n, err := components.Pipeline.RebuildIndex(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Vector index rebuilt: %d chunk(s)\n", n)
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Documents       int64                  `json:"documents"`
	Chunks          int64                  `json:"chunks"`
	Answers         int64                  `json:"answers"`
	VectorIndexSize int                    `json:"vector_index_size"`
	Cache           *cacheStatsResponse    `json:"cache,omitempty"`
	DiskUsageBytes  *int64                 `json:"disk_usage_bytes,omitempty"`
	Config          map[string]interface{} `json:"config,omitempty"`
}

type cacheStatsResponse struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		components, cfg := mustInitialize(*configPath)
		defer components.Close()
		ctx := context.Background()
		docCount, err := components.Storage.CountDocuments(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count documents failed: %v\n", err)
			os.Exit(1)
		}
		chunkCount, err := components.Storage.CountChunks(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count chunks failed: %v\n", err)
			os.Exit(1)
		}
		answerCount, err := components.Storage.CountAnswers(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count answers failed: %v\n", err)
			os.Exit(1)
		}
		status = statusResponse{
			Documents:       docCount,
			Chunks:          chunkCount,
			Answers:         answerCount,
			VectorIndexSize: components.Pipeline.IndexSize(),
			Config: map[string]interface{}{
				"chunk_size":           cfg.Retrieval.ChunkSize,
				"chunk_overlap":        cfg.Retrieval.ChunkOverlap,
				"top_k":                cfg.Retrieval.TopK,
				"similarity_threshold": cfg.Retrieval.SimilarityThreshold,
				"embedding_dimensions": cfg.Embedding.Dimensions,
				"model":                cfg.Generation.Model,
				"database_path":        cfg.Storage.DatabasePath,
				"vector_index_path":    cfg.Storage.VectorIndexPath,
			},
		}
		if stats, err := components.Storage.CacheStats(ctx); err == nil {
			status.Cache = &cacheStatsResponse{Entries: stats.Entries, Hits: stats.Hits}
		}
		if diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.VectorIndexPath); err == nil {
			status.DiskUsageBytes = &diskBytes
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("documents:          %d\n", status.Documents)
		fmt.Printf("chunks:             %d\n", status.Chunks)
		fmt.Printf("answers:            %d\n", status.Answers)
		fmt.Printf("vector_index_size:  %d\n", status.VectorIndexSize)
		if status.Cache != nil {
			fmt.Printf("cache_entries:      %d\n", status.Cache.Entries)
			fmt.Printf("cache_hits:         %d\n", status.Cache.Hits)
		}
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage_bytes:   %d\n", *status.DiskUsageBytes)
		}
		if len(status.Config) > 0 {
			fmt.Println()
			fmt.Println("# configuration")
			for _, key := range []string{
				"model", "embedding_dimensions", "chunk_size", "chunk_overlap",
				"top_k", "similarity_threshold", "database_path", "vector_index_path",
			} {
				if v, ok := status.Config[key]; ok && v != "" {
					fmt.Printf("%-20s %v\n", key+":", v)
				}
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: kotae watch <add|remove|list> [path]")
		fmt.Println("  kotae watch add <path>     Add directory to watch")
		fmt.Println("  kotae watch remove <path>  Remove directory from watch")
		fmt.Println("  kotae watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[3:])
	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kotae watch add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]interface{}{"path": path, "sync": true})
		resp, err := http.Post(*serverURL+"/api/v1/watch/directories", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Add failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kotae watch remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/watch/directories?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Remove failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		resp, err := http.Get(*serverURL + "/api/v1/watch/directories")
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("List failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Printf("Parse failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	Embedder     embedding.Embedder
	Index        vector.Index
	Pipeline     *pipeline.Pipeline
	hasGenerator bool
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
}

// mustInitialize loads config, builds a logger, and initializes components,
// exiting on any failure. Shared by all one-shot subcommands.
func mustInitialize(configPath string) (*Components, *config.Config) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return components, cfg
}

// requireGenerator exits when no API key was configured. Commands that only
// search or report do not need one.
func requireGenerator(c *Components) {
	if !c.hasGenerator {
		fmt.Fprintln(os.Stderr, "No API key configured; set generation.api_key or ANTHROPIC_API_KEY")
		os.Exit(1)
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var embedder embedding.Embedder
	if cfg.Embedding.ModelPath != "" {
		onnxEmbedder, onnxErr := embedding.NewONNXEmbedder(
			cfg.Embedding.ModelPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
			cfg.Embedding.CacheSize,
		)
		if onnxErr != nil {
			logger.Warn("ONNX embedder unavailable, falling back to hash embedder", zap.Error(onnxErr))
		} else {
			embedder = onnxEmbedder
		}
	}
	if embedder == nil {
		embedder = embedding.NewHashEmbedder(cfg.Embedding.Dimensions)
	}

	index := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := index.Load(cfg.Storage.VectorIndexPath); loadErr != nil {
			logger.Warn("vector index load skipped (use kotae rebuild)",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(loadErr))
		}
	}
	logger.Info("vector index initialized", zap.Int("size", index.Size()))

	retr := retriever.New(embedder, index, store,
		cfg.Retrieval.TopK, cfg.Retrieval.SimilarityThreshold, logger)

	var gen *generator.Generator
	hasGenerator := false
	if apiKey := cfg.Generation.ResolveAPIKey(); apiKey != "" {
		timeout := time.Duration(cfg.Generation.TimeoutSeconds) * time.Second
		llm, llmErr := generator.NewClaudeLLM(apiKey, cfg.Generation.Model, timeout)
		if llmErr != nil {
			return nil, fmt.Errorf("failed to initialize LLM client: %w", llmErr)
		}
		gen = generator.New(llm, cfg.Generation.MaxTokens, cfg.Generation.Temperature,
			cfg.Generation.MaxContextUnits, logger)
		hasGenerator = true
	} else {
		logger.Warn("no API key configured; answer generation disabled")
	}

	answerCache, err := cache.NewAnswerCache(context.Background(), store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize answer cache: %w", err)
	}

	p, err := pipeline.New(store, embedder, index, retr, gen, answerCache,
		extract.NewExtractor(), cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Components{
		Storage:      store,
		Embedder:     embedder,
		Index:        index,
		Pipeline:     p,
		hasGenerator: hasGenerator,
	}, nil
}

func printUsage() {
	fmt.Println(`kotae - Retrieval-augmented RFP answering

Usage:
  kotae server [flags]                  Start the HTTP server
  kotae ingest [flags] <path>           Ingest a document file or directory
  kotae delete [flags] <document-id>    Delete a document
  kotae search [flags] <query>          Retrieve relevant document chunks
  kotae ask [flags] <question>          Answer a one-off question
  kotae rfp [flags] <name> <file>       Create an RFP from a questions file
  kotae answer [flags] <rfp-id>         Generate answers for an RFP
  kotae answers [flags] <rfp-id>        List an RFP's answers
  kotae regenerate [flags] <question-id>  Regenerate one answer
  kotae rebuild [flags]                 Rebuild the vector index from storage
  kotae status [flags]                  Show storage/index/cache status
  kotae watch <add|remove|list>         Manage watched directories
  kotae version                         Show version
  kotae help                            Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --output string    Output format: text or json (default: text)

Server Flags:
  --debug            Enable debug logging (directory changes, file ingestion, etc.)

Search Flags:
  --top-k int        Number of chunks to retrieve (default from config)
  --threshold float  Minimum similarity score (default from config)

Status/Watch Flags:
  --server string    Server URL (default: http://localhost:8080). For status,
                     use empty (--server "") to read storage directly.

Examples:
  kotae server
  kotae ingest ./docs
  kotae search "data retention policy"
  kotae ask "Do you support single sign-on?"
  kotae rfp "Acme RFP" questions.txt
  kotae answer rfp-123
  kotae answers --output json rfp-123
  kotae regenerate q-456
  kotae status --output json
  kotae watch add /path/to/docs`)
}
