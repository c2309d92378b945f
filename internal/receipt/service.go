package receipt

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pateln09/splitsies/internal/extraction"
	"github.com/pateln09/splitsies/internal/metrics"
	"github.com/pateln09/splitsies/internal/split"
)

// ParseState is the orchestrator's extraction state, observable by the
// presentation layer via Status.
type ParseState string

const (
	StateIdle      ParseState = "idle"
	StateParsing   ParseState = "parsing"
	StateSucceeded ParseState = "succeeded"
	StateFailed    ParseState = "failed"
)

// ErrParseInFlight is returned when an upload arrives while another
// extraction is still running. Submissions are rejected rather than
// queued or raced.
var ErrParseInFlight = errors.New("a receipt is already being parsed")

// ErrUnknownPerson is returned when a split operation names a person
// outside the session's eligible group.
var ErrUnknownPerson = errors.New("person is not in the group")

// ErrHandleTaken is returned when adding a friend with a handle that is
// already in use.
var ErrHandleTaken = errors.New("handle is already taken")

// User-facing failure messages. The missing-credential case is a
// configuration problem and gets its own message; everything else is a
// generic parse failure since manual entry remains possible.
const (
	msgMissingCredential = "Gemini API key not configured."
	msgParseFailed       = "Couldn't parse that receipt. You can still enter it manually."
	msgSaveFailed        = "Couldn't save that receipt. Please try again."
)

// IDGenerator generates unique IDs for entities
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// splitSession is one receipt's transient assignment state. The eligible
// people are snapshotted when the session starts and stay fixed for its
// lifetime; membership changes never happen mid-split.
type splitSession struct {
	people      []Person
	assignments *split.Assignments
}

// SplitSummary is the presentation view of one split session: per-item
// assignment labels, per-person owed totals, and the subtotal mismatch
// warning. It is recomputed fresh on every query.
type SplitSummary struct {
	ReceiptID        string             `json:"receipt_id"`
	People           []Person           `json:"people"`
	Labels           map[string]string  `json:"labels"` // item ID -> label
	Totals           map[string]float64 `json:"totals"` // person ID -> amount owed
	SubtotalMismatch bool               `json:"subtotal_mismatch"`
}

// Service sequences image acquisition, extraction, and persistence, and
// owns the transient split sessions.
type Service struct {
	db          DB
	parser      extraction.Parser
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
	metrics     *metrics.ExtractionMetrics
	parserName  string

	mu        sync.Mutex
	state     ParseState
	statusMsg string
	sessions  map[string]*splitSession
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, parser extraction.Parser, storage Storage) *Service {
	return NewServiceWithDeps(db, parser, storage, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, parser extraction.Parser, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		parser:      parser,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
		parserName:  "unknown",
		state:       StateIdle,
		sessions:    make(map[string]*splitSession),
	}
}

// WithMetrics attaches extraction metrics under the given parser label.
func (s *Service) WithMetrics(m *metrics.ExtractionMetrics, parserName string) *Service {
	s.metrics = m
	if parserName != "" {
		s.parserName = parserName
	}
	return s
}

// Status returns the current parse state and, for a failed parse, the
// user-facing message.
func (s *Service) Status() (ParseState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.statusMsg
}

func (s *Service) setState(state ParseState, msg string) {
	s.mu.Lock()
	s.state = state
	s.statusMsg = msg
	s.mu.Unlock()
}

// ProcessReceipt stores the image, extracts a receipt from it, and
// persists the result. On any failure nothing is persisted and the stored
// image is released. Only one extraction may be in flight at a time; a
// concurrent call fails with ErrParseInFlight.
func (s *Service) ProcessReceipt(imageData []byte, contentType string) (*Receipt, error) {
	s.mu.Lock()
	if s.state == StateParsing {
		s.mu.Unlock()
		return nil, ErrParseInFlight
	}
	s.state = StateParsing
	s.statusMsg = ""
	s.mu.Unlock()

	imageRef := s.saveImage(imageData, contentType)

	start := time.Now()
	parsed, err := s.parser.ParseReceipt(imageData, contentType)
	s.metrics.ObserveDuration(s.parserName, time.Since(start))
	if err != nil {
		slog.Error("Failed to parse receipt",
			"content_type", contentType,
			"image_size", len(imageData),
			"error", err,
		)
		s.metrics.IncFailure(s.parserName, failureReason(err))
		s.releaseImage(imageRef)

		msg := msgParseFailed
		if errors.Is(err, extraction.ErrMissingCredential) {
			msg = msgMissingCredential
		}
		s.setState(StateFailed, msg)
		return nil, fmt.Errorf("parsing receipt: %w", err)
	}

	receipt := NewFromParsed(parsed, imageRef, s.idGenerator, s.timeSource.Now())

	if err := s.db.SaveReceipt(receipt); err != nil {
		s.metrics.IncFailure(s.parserName, "persistence")
		s.releaseImage(imageRef)
		s.setState(StateFailed, msgSaveFailed)
		return nil, fmt.Errorf("saving receipt: %w", err)
	}

	s.metrics.IncSuccess(s.parserName)
	s.setState(StateSucceeded, "")
	return receipt, nil
}

// saveImage stores the raw upload and returns its reference. Storage
// failure is not fatal to the parse: the receipt simply has no image,
// matching how a receipt entered manually would look.
func (s *Service) saveImage(imageData []byte, contentType string) *string {
	name := s.idGenerator.Generate() + extensionFor(contentType)
	ref, err := s.storage.Save(name, imageData)
	if err != nil {
		slog.Warn("Failed to store receipt image", "name", name, "error", err)
		return nil
	}
	return &ref
}

func (s *Service) releaseImage(imageRef *string) {
	if imageRef == nil {
		return
	}
	if err := s.storage.Delete(*imageRef); err != nil {
		slog.Warn("Failed to delete receipt image", "ref", *imageRef, "error", err)
	}
}

func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png":
		return ".png"
	case "application/pdf":
		return ".pdf"
	case "image/heic", "image/heif":
		return ".heic"
	default:
		return ".jpg"
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, extraction.ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, extraction.ErrEncodingFailed):
		return "encoding"
	case errors.Is(err, extraction.ErrServiceUnavailable):
		return "service_unavailable"
	case errors.Is(err, extraction.ErrMalformedResult):
		return "malformed_result"
	}
	return "other"
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts ordered by receipt date descending,
// undated receipts last.
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	sortByDateDesc(receipts)
	return receipts, nil
}

// GetReceiptImage retrieves the stored image for a receipt.
func (s *Service) GetReceiptImage(id string) ([]byte, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	if receipt.ImageRef == nil {
		return nil, fmt.Errorf("receipt %s image: %w", id, ErrNotFound)
	}
	data, err := s.storage.Get(*receipt.ImageRef)
	if err != nil {
		return nil, fmt.Errorf("getting receipt image: %w", err)
	}
	return data, nil
}

// DeleteReceipt removes a receipt, cascading to its items, releasing its
// stored image, and discarding any split session. A persistence failure
// is surfaced to the caller, not just logged; only the image release is
// tolerated as a warning since an orphaned blob is recoverable.
func (s *Service) DeleteReceipt(id string) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	s.releaseImage(receipt.ImageRef)

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// UpdateItem edits an item's name and/or price. A nil argument leaves the
// field untouched. The price arrives as the raw edit string and goes
// through SanitizePrice, so an empty or garbled edit clears the price to
// unknown rather than failing.
func (s *Service) UpdateItem(receiptID, itemID string, name *string, rawPrice *string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(receiptID)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}

	item := receipt.Item(itemID)
	if item == nil {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			item.Name = nil
		} else {
			item.Name = &trimmed
		}
	}
	if rawPrice != nil {
		item.Price = SanitizePrice(*rawPrice)
	}
	receipt.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving receipt: %w", err)
	}
	return receipt, nil
}

// AddPerson adds a friend to the group. Handles are unique.
func (s *Service) AddPerson(name, handle string) (*Person, error) {
	name = strings.TrimSpace(name)
	handle = strings.TrimSpace(handle)
	if name == "" || handle == "" {
		return nil, fmt.Errorf("name and handle are required")
	}

	people, err := s.db.ListPeople()
	if err != nil {
		return nil, fmt.Errorf("listing people: %w", err)
	}
	for _, p := range people {
		if strings.EqualFold(p.Handle, handle) {
			return nil, fmt.Errorf("%s: %w", handle, ErrHandleTaken)
		}
	}

	person := &Person{
		ID:     s.idGenerator.Generate(),
		Name:   name,
		Handle: handle,
	}
	if err := s.db.SavePerson(person); err != nil {
		return nil, fmt.Errorf("saving person: %w", err)
	}
	return person, nil
}

// ListPeople returns the friend group ordered by name.
func (s *Service) ListPeople() ([]Person, error) {
	people, err := s.db.ListPeople()
	if err != nil {
		return nil, fmt.Errorf("listing people: %w", err)
	}
	slices.SortFunc(people, func(a, b Person) int {
		return strings.Compare(a.Name, b.Name)
	})
	return people, nil
}

// sessionFor returns the receipt's split session, lazily starting one
// with the current friend group as its fixed eligible-people snapshot.
func (s *Service) sessionFor(receiptID string) (*splitSession, error) {
	s.mu.Lock()
	if session, ok := s.sessions[receiptID]; ok {
		s.mu.Unlock()
		return session, nil
	}
	s.mu.Unlock()

	// Validate the receipt outside the lock; bbolt reads can block.
	if _, err := s.db.GetReceipt(receiptID); err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	people, err := s.ListPeople()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[receiptID]; ok {
		return session, nil
	}
	session := &splitSession{
		people:      people,
		assignments: split.NewAssignments(),
	}
	s.sessions[receiptID] = session
	return session, nil
}

// ToggleItemAssignment flips one person's share of one item and returns
// the item's new assignment label.
func (s *Service) ToggleItemAssignment(receiptID, itemID, personID string) (string, error) {
	receipt, err := s.db.GetReceipt(receiptID)
	if err != nil {
		return "", fmt.Errorf("getting receipt: %w", err)
	}
	if receipt.Item(itemID) == nil {
		return "", fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}

	session, err := s.sessionFor(receiptID)
	if err != nil {
		return "", err
	}

	eligible := false
	for _, p := range session.people {
		if p.ID == personID {
			eligible = true
			break
		}
	}
	if !eligible {
		return "", fmt.Errorf("%s: %w", personID, ErrUnknownPerson)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	session.assignments.Toggle(itemID, personID)
	return session.assignments.Describe(itemID, splitPeople(session.people)), nil
}

// AssignItemToEveryone clears an item's explicit assignment, restoring
// the split-among-everyone default.
func (s *Service) AssignItemToEveryone(receiptID, itemID string) error {
	receipt, err := s.db.GetReceipt(receiptID)
	if err != nil {
		return fmt.Errorf("getting receipt: %w", err)
	}
	if receipt.Item(itemID) == nil {
		return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}

	session, err := s.sessionFor(receiptID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	session.assignments.AssignEveryone(itemID)
	return nil
}

// SplitSummary recomputes the receipt's assignment labels, per-person
// owed totals, and the subtotal mismatch flag from scratch.
func (s *Service) SplitSummary(receiptID string) (*SplitSummary, error) {
	receipt, err := s.db.GetReceipt(receiptID)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	session, err := s.sessionFor(receiptID)
	if err != nil {
		return nil, err
	}

	items := splitItems(receipt)
	people := splitPeople(session.people)

	s.mu.Lock()
	defer s.mu.Unlock()

	labels := make(map[string]string, len(items))
	for _, item := range items {
		labels[item.ID] = session.assignments.Describe(item.ID, people)
	}

	totals := make(map[string]float64, len(people))
	for id, amount := range split.Allocate(items, session.assignments, people) {
		totals[id] = amount.InexactFloat64()
	}

	return &SplitSummary{
		ReceiptID:        receipt.ID,
		People:           session.people,
		Labels:           labels,
		Totals:           totals,
		SubtotalMismatch: split.SubtotalMismatch(items, receipt.Subtotal),
	}, nil
}

// EndSplit discards a receipt's split session, if any.
func (s *Service) EndSplit(receiptID string) {
	s.mu.Lock()
	delete(s.sessions, receiptID)
	s.mu.Unlock()
}

func splitItems(receipt *Receipt) []split.Item {
	items := make([]split.Item, 0, len(receipt.Items))
	for _, item := range receipt.Items {
		name := ""
		if item.Name != nil {
			name = *item.Name
		}
		items = append(items, split.Item{
			ID:    item.ID,
			Name:  name,
			Price: item.Price,
		})
	}
	return items
}

func splitPeople(people []Person) []split.Person {
	out := make([]split.Person, 0, len(people))
	for _, p := range people {
		out = append(out, split.Person{ID: p.ID, Name: p.Name})
	}
	return out
}
