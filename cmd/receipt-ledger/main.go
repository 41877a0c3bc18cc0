package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-ledger/internal/category"
	"github.com/zombor/receipt-ledger/internal/events"
	"github.com/zombor/receipt-ledger/internal/expense"
	"github.com/zombor/receipt-ledger/internal/receipt"
	"github.com/zombor/receipt-ledger/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env", "error", err)
	}

	fs := ff.NewFlagSet("receipt-ledger")
	var (
		port              = fs.IntLong("port", 8080, "HTTP server port")
		storeType         = fs.StringLong("store", "bolt", "Expense store: 'bolt' or 'sqlite'")
		dbPath            = fs.StringLong("db", "receipt-ledger.db", "Database file path")
		tmpDir            = fs.StringLong("tmp-dir", "", "Directory for receipt images while they are scanned (default: system temp)")
		scannerType       = fs.StringLong("scanner", "tesseract", "Scanner type: 'tesseract', 'gemini' or 'ollama'")
		language          = fs.StringLong("language", "vi", "Receipt language hint: 'vi' or 'en'")
		ocrTimeout        = fs.DurationLong("ocr-timeout", scanning.DefaultOCRTimeout, "Text recognition timeout")
		geminiKey         = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel       = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		geminiTimeout     = fs.DurationLong("gemini-timeout", scanning.DefaultGeminiTimeout, "Gemini request timeout")
		ollamaURL         = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel       = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama vision model name")
		ollamaTimeout     = fs.DurationLong("ollama-timeout", scanning.DefaultOllamaTimeout, "Ollama request timeout")
		categoriesPath    = fs.StringLong("categories", "", "Category dictionary YAML (default: bundled dictionary)")
		expenseType       = fs.StringLong("expense-type", receipt.TypeRequired, "Expense type used when a commit names none")
		commitConcurrency = fs.IntLong("commit-concurrency", receipt.DefaultCommitConcurrency, "Concurrent expense writes per commit")
		amqpURL           = fs.StringLong("amqp-url", "", "AMQP broker URL for expense events (optional)")
		amqpExchange      = fs.StringLong("amqp-exchange", "receipt-ledger", "AMQP exchange name")
		amqpQueue         = fs.StringLong("amqp-queue", "expense-created", "AMQP queue bound to expense.created")
		authUser          = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass          = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel          = fs.StringLong("log-level", "info", "Log level: debug, info, warn, error")
		showVersion       = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_LEDGER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// Initialize expense store
	slog.Info("Initializing expense store...", "store", *storeType, "path", *dbPath)
	store, err := openStore(*storeType, *dbPath)
	if err != nil {
		slog.Error("Failed to initialize expense store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize scanner based on type
	var scanner scanning.Scanner
	switch *scannerType {
	case "tesseract":
		slog.Info("Initializing Tesseract scanner...", "timeout", *ocrTimeout)
		scanner = scanning.NewOCR(scanning.TesseractRecognizer{}, *ocrTimeout)
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		scanner, err = scanning.NewGemini(apiKey, *geminiModel, *geminiTimeout)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		scanner = scanning.NewOllama(*ollamaURL, *ollamaModel, *ollamaTimeout)
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "tesseract, gemini or ollama")
		os.Exit(1)
	}
	defer scanner.Close()

	lang := scanning.LanguageHint(*language)
	if lang != scanning.LanguageVietnamese && lang != scanning.LanguageEnglish {
		slog.Error("Invalid language hint", "language", *language, "valid", "vi or en")
		os.Exit(1)
	}

	// Load category dictionary
	dictionary, err := category.LoadDictionary(*categoriesPath)
	if err != nil {
		slog.Error("Failed to load category dictionary", "path", *categoriesPath, "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded category dictionary", "categories", len(dictionary.Categories()), "default", dictionary.Default())

	// Initialize temporary image storage
	storage, err := receipt.NewLocalStorage(*tmpDir)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize event publisher
	var publisher events.Publisher = events.Noop{}
	if *amqpURL != "" {
		slog.Info("Connecting to AMQP broker...", "exchange", *amqpExchange, "queue", *amqpQueue)
		amqpPublisher, err := events.NewAMQPPublisher(*amqpURL, *amqpExchange, *amqpQueue)
		if err != nil {
			slog.Error("Failed to connect to AMQP broker", "error", err)
			os.Exit(1)
		}
		publisher = amqpPublisher
	}
	defer publisher.Close()

	// Initialize service
	receiptService := receipt.NewService(store, scanner, storage, dictionary, publisher, receipt.Config{
		Language:          lang,
		DefaultType:       *expenseType,
		CommitConcurrency: *commitConcurrency,
	})

	// Initialize server
	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(receiptService, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "scanner", scanner.Strategy(), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}
}

func openStore(kind, path string) (expense.Store, error) {
	switch kind {
	case "bolt":
		return expense.NewBoltStore(path)
	case "sqlite":
		return expense.NewSQLiteStore(path)
	}
	return nil, fmt.Errorf("invalid store type %q: want bolt or sqlite", kind)
}
