package bundle

import (
	"errors"
	"iter"
	"strconv"

	"github.com/hupe1980/gvsingest/record"
)

const (
	// DefaultMaxEntriesPerDocument caps the entries of a single document.
	DefaultMaxEntriesPerDocument = 10_000
	// DefaultNumProgress is the number of records between progress signals.
	DefaultNumProgress = 1_000_000
)

// ErrInvalidConfig is returned by NewBundler for unusable settings.
var ErrInvalidConfig = errors.New("bundle: invalid config")

// Config controls how records are grouped into documents.
type Config struct {
	// MaxEntriesPerDocument is the upper bound on entries per document.
	// If 0, DefaultMaxEntriesPerDocument is used.
	MaxEntriesPerDocument int

	// DropState excludes records whose state field equals it. Empty
	// disables filtering.
	DropState string

	// NumProgress is the number of records between Progress calls.
	// If 0, DefaultNumProgress is used.
	NumProgress int64

	// MaxRecords stops reading once the shared record counter reaches it.
	// If 0, there is no limit.
	MaxRecords int64

	// Progress receives the record counter every NumProgress records.
	Progress func(records int64)
}

// SchemaFunc returns the source schema. A Bundler calls it at most once.
type SchemaFunc func() []FieldDescriptor

// Bundler folds a stream of records into documents.
//
// It is strictly sequential: correctness depends on encounter order.
// A Bundler must not be used concurrently; the counters it shares may be.
type Bundler struct {
	cfg Config

	schemaFn     SchemaFunc
	schema       []FieldDescriptor
	schemaLoaded bool

	ids     *Counter
	records *Counter

	open       *Document
	sampleID   int64
	chromosome int64
	maxEnd     int64
}

// NewBundler creates a Bundler. ids and records may be shared with other
// Bundlers of the same run.
func NewBundler(cfg Config, schema SchemaFunc, ids, records *Counter) (*Bundler, error) {
	if cfg.MaxEntriesPerDocument == 0 {
		cfg.MaxEntriesPerDocument = DefaultMaxEntriesPerDocument
	}
	if cfg.NumProgress == 0 {
		cfg.NumProgress = DefaultNumProgress
	}
	if cfg.MaxEntriesPerDocument < 0 || cfg.NumProgress < 0 || cfg.MaxRecords < 0 {
		return nil, ErrInvalidConfig
	}
	if ids == nil {
		ids = &Counter{}
	}
	if records == nil {
		records = &Counter{}
	}
	return &Bundler{
		cfg:      cfg,
		schemaFn: schema,
		ids:      ids,
		records:  records,
	}, nil
}

// Push adds one record. It returns the previously open document when the
// record starts a new one, otherwise nil.
//
// The record is normalized in place. A malformed record returns an error
// and leaves the Bundler state unchanged apart from the record counter.
func (b *Bundler) Push(r *record.Record) (*Document, error) {
	n := b.records.Inc()
	if b.cfg.Progress != nil && n%b.cfg.NumProgress == 0 {
		b.cfg.Progress(n)
	}

	if b.cfg.DropState != "" {
		if s, ok := r.String(record.FieldState); ok && s == b.cfg.DropState {
			return nil, nil
		}
	}

	sampleID, err := record.SampleID(r)
	if err != nil {
		return nil, err
	}
	shape, err := record.Classify(r)
	if err != nil {
		return nil, err
	}
	location := shape.Start()
	chromosome := record.Chromosome(location)
	end := shape.End()

	record.Normalize(r)

	if b.open != nil &&
		sampleID == b.sampleID &&
		chromosome == b.chromosome &&
		len(b.open.Entries) < b.cfg.MaxEntriesPerDocument {
		b.open.Entries = append(b.open.Entries, r)
		b.maxEnd = max(b.maxEnd, end)
		return nil, nil
	}

	sealed := b.seal()

	if !b.schemaLoaded {
		if b.schemaFn != nil {
			b.schema = b.schemaFn()
		}
		b.schemaLoaded = true
	}

	b.open = &Document{
		ID:         strconv.FormatInt(b.ids.Inc(), 10),
		SampleID:   sampleID,
		Chromosome: chromosome,
		Location:   Location{Start: location},
		Schema:     b.schema,
		Entries:    []*record.Record{r},
	}
	b.sampleID = sampleID
	b.chromosome = chromosome
	b.maxEnd = end

	return sealed, nil
}

// Flush seals and returns the open document, or nil if none is open.
func (b *Bundler) Flush() *Document {
	return b.seal()
}

// LimitReached reports whether the shared record counter hit MaxRecords.
func (b *Bundler) LimitReached() bool {
	return b.cfg.MaxRecords > 0 && b.records.Load() >= b.cfg.MaxRecords
}

func (b *Bundler) seal() *Document {
	d := b.open
	if d == nil {
		return nil
	}
	d.Location.End = b.maxEnd
	if b.cfg.DropState != "" {
		d.DropState = b.cfg.DropState
	}
	b.open = nil
	return d
}

// Bundle drives b over records and yields sealed documents in order.
//
// Iteration stops at the first error, which is yielded with a nil
// document; the open document is not salvaged. When the record limit is
// reached the remaining records are not read and the open document is
// sealed normally.
func Bundle(records iter.Seq2[*record.Record, error], b *Bundler) iter.Seq2[*Document, error] {
	return func(yield func(*Document, error) bool) {
		for r, err := range records {
			if err != nil {
				yield(nil, err)
				return
			}
			if b.LimitReached() {
				break
			}
			doc, err := b.Push(r)
			if err != nil {
				yield(nil, err)
				return
			}
			if doc != nil && !yield(doc, nil) {
				return
			}
		}
		if doc := b.Flush(); doc != nil {
			yield(doc, nil)
		}
	}
}

// Collect drains a document sequence into a slice.
func Collect(docs iter.Seq2[*Document, error]) ([]*Document, error) {
	var out []*Document
	for d, err := range docs {
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
