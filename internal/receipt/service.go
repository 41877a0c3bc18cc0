package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/receipt-ledger/internal/category"
	"github.com/zombor/receipt-ledger/internal/events"
	"github.com/zombor/receipt-ledger/internal/expense"
	"github.com/zombor/receipt-ledger/internal/lineitem"
	"github.com/zombor/receipt-ledger/internal/scanning"
)

// DefaultCommitConcurrency bounds concurrent Create calls of one commit.
const DefaultCommitConcurrency = 4

// IDGenerator generates unique IDs for scans and expenses
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemTime struct{}

func (systemTime) Now() time.Time {
	return time.Now()
}

// Config holds the pipeline settings.
type Config struct {
	Language          scanning.LanguageHint
	DefaultType       string
	CommitConcurrency int
}

// Service handles receipt scans and expense commits
type Service struct {
	store       expense.Store
	scanner     scanning.Scanner
	storage     Storage
	dictionary  *category.Dictionary
	publisher   events.Publisher
	config      Config
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with UUIDs and the system clock
func NewService(store expense.Store, scanner scanning.Scanner, storage Storage, dictionary *category.Dictionary, publisher events.Publisher, cfg Config) *Service {
	return NewServiceWithDeps(store, scanner, storage, dictionary, publisher, cfg, uuidGenerator{}, systemTime{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(store expense.Store, scanner scanning.Scanner, storage Storage, dictionary *category.Dictionary, publisher events.Publisher, cfg Config, idGen IDGenerator, timeSrc TimeSource) *Service {
	if cfg.Language == "" {
		cfg.Language = scanning.LanguageVietnamese
	}
	if cfg.DefaultType == "" {
		cfg.DefaultType = TypeRequired
	}
	if cfg.CommitConcurrency <= 0 {
		cfg.CommitConcurrency = DefaultCommitConcurrency
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		store:       store,
		scanner:     scanner,
		storage:     storage,
		dictionary:  dictionary,
		publisher:   publisher,
		config:      cfg,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Scan runs one receipt through extraction, parsing and categorization.
// The image is held in temporary storage only while the scan runs and is
// deleted on every return path.
func (s *Service) Scan(ctx context.Context, img RawImage) (*ScanResult, error) {
	if len(img.Data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrAcquisitionFailed)
	}

	id := s.idGenerator.Generate()
	name := id + imageExt(img)
	savedPath, err := s.storage.Save(name, img.Data)
	if err != nil {
		// A failed write may still leave a partial file behind.
		if derr := s.storage.Delete(name); derr == nil {
			slog.Warn("Removed partial receipt image", "scan_id", id, "path", name)
		}
		return nil, fmt.Errorf("%w: saving image: %w", ErrAcquisitionFailed, err)
	}
	defer s.discard(id, savedPath)

	data, err := s.storage.Get(savedPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading image: %w", ErrAcquisitionFailed, err)
	}

	result, err := s.scanner.ScanReceipt(ctx, scanning.Image{Data: data, ContentType: img.ContentType}, s.config.Language)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"scan_id", id,
			"strategy", s.scanner.Strategy(),
			"filename", img.Filename,
			"content_type", img.ContentType,
			"file_size", len(img.Data),
			"error", err,
		)
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}

	var items []lineitem.Item
	switch result.Kind {
	case scanning.KindLines:
		items = lineitem.Parse(result.Lines)
	case scanning.KindItems:
		items = result.Items
	default:
		return nil, fmt.Errorf("scanning receipt: %w: unknown result kind %q", scanning.ErrExtractionMalformed, result.Kind)
	}

	scan := &ScanResult{
		ID:       id,
		Strategy: s.scanner.Strategy(),
		Status:   StatusItems,
		Items:    category.CategorizeAll(items, s.dictionary),
	}
	if len(scan.Items) == 0 {
		scan.Status = StatusEmpty
	}
	slog.Info("Scanned receipt", "scan_id", id, "strategy", scan.Strategy, "items", len(scan.Items))
	return scan, nil
}

func (s *Service) discard(id, path string) {
	if err := s.storage.Delete(path); err != nil {
		slog.Error("Failed to delete receipt image", "scan_id", id, "path", path, "error", err)
	}
}

// Commit stores every accepted item as its own expense record. Items are
// independent: a failing item is reported in its result and never stops
// the others. The error is only set when the request itself is invalid.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidCommit)
	}

	now := s.timeSource.Now()
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if req.Date != "" {
		d, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD: %q", ErrInvalidCommit, req.Date)
		}
		date = d
	}

	expenseType := strings.TrimSpace(req.Type)
	if expenseType == "" {
		expenseType = s.config.DefaultType
	}
	if !slices.Contains(ExpenseTypes, expenseType) {
		return nil, fmt.Errorf("%w: unknown expense type %q", ErrInvalidCommit, expenseType)
	}

	base := expense.Record{
		Type:   expenseType,
		Date:   date,
		UserID: userID,
		Note:   strings.TrimSpace(req.Note),
	}

	var accepted []int
	for i, item := range req.Items {
		if item.Accepted {
			accepted = append(accepted, i)
		}
	}

	results := make([]ItemResult, len(accepted))
	var g errgroup.Group
	g.SetLimit(s.config.CommitConcurrency)
	for slot, index := range accepted {
		g.Go(func() error {
			results[slot] = s.commitItem(ctx, index, req.Items[index], base)
			return nil
		})
	}
	_ = g.Wait()

	out := &CommitResult{Results: results}
	for _, r := range results {
		if r.Status == ItemStored {
			out.Stored++
		} else {
			out.Failed++
		}
	}
	slog.Info("Committed receipt items", "user_id", userID, "stored", out.Stored, "failed", out.Failed)
	return out, nil
}

func (s *Service) commitItem(ctx context.Context, index int, item CommitItem, base expense.Record) ItemResult {
	result := ItemResult{Index: index, Description: strings.TrimSpace(item.Description)}

	record, err := s.newRecord(item, base)
	if err != nil {
		result.Status = ItemInvalid
		result.Error = err.Error()
		return result
	}

	id, err := s.store.Create(ctx, record)
	if err != nil {
		perr := &PersistError{Index: index, Description: record.Description, Err: err}
		slog.Error("Failed to store expense", "index", index, "error", perr)
		result.Status = ItemFailed
		result.Error = perr.Error()
		return result
	}

	result.Status = ItemStored
	result.ID = id
	if err := s.publisher.PublishExpenseCreated(ctx, record); err != nil {
		slog.Warn("Failed to publish expense event", "expense_id", id, "error", err)
	}
	return result
}

func (s *Service) newRecord(item CommitItem, base expense.Record) (*expense.Record, error) {
	description := strings.TrimSpace(item.Description)
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidItem)
	}
	if item.Amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidItem)
	}
	if item.Quantity != nil && *item.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidItem)
	}
	name, err := s.dictionary.Canonical(item.Category)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}

	record := base
	record.ID = s.idGenerator.Generate()
	record.Description = description
	record.Amount = item.Amount
	record.Category = name
	record.CreatedAt = s.timeSource.Now()
	return &record, nil
}

// GetExpense retrieves an expense by ID
func (s *Service) GetExpense(ctx context.Context, id string) (*expense.Record, error) {
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	return record, nil
}

// ListExpenses returns the expenses of a user, or all expenses for an
// empty userID
func (s *Service) ListExpenses(ctx context.Context, userID string) ([]*expense.Record, error) {
	records, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	if records == nil {
		records = []*expense.Record{}
	}
	return records, nil
}

// DeleteExpense removes an expense. The store confirms the row is gone.
func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting expense: %w", err)
	}
	return nil
}

// Categories returns the categories expenses can be filed under.
func (s *Service) Categories() []category.Category {
	return s.dictionary.Categories()
}

// DefaultCategory returns the category used when nothing matches.
func (s *Service) DefaultCategory() string {
	return s.dictionary.Default()
}

// IsNotFound reports whether err means the expense does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, expense.ErrNotFound)
}

// imageExt picks the temp file extension from the upload.
func imageExt(img RawImage) string {
	if ext := strings.ToLower(filepath.Ext(img.Filename)); ext != "" && len(ext) <= 5 {
		return ext
	}
	switch strings.ToLower(img.ContentType) {
	case "image/png":
		return ".png"
	case "application/pdf":
		return ".pdf"
	case "image/heic":
		return ".heic"
	case "image/heif":
		return ".heif"
	}
	return ".jpg"
}
