package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hupe1980/gvsingest"
	"github.com/hupe1980/gvsingest/bulk"
	"github.com/hupe1980/gvsingest/bundle"
	"github.com/hupe1980/gvsingest/codec"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Options holds all CLI flags and environment settings.
type Options struct {
	// Destination
	Database  string
	Container string

	// Source
	AvroDir string

	// Bundling
	MaxRecords            int64
	NumProgress           int64
	MaxRecordsPerDocument int
	DropState             string

	// Submission
	SubmissionBatchSize int
	ContinuousFlux      bool
	MaxInFlightWindows  int

	// Transport
	TargetThroughput            int64
	MaxMicroBatchSize           int
	MaxMicroBatchConcurrency    int
	MaxMicroBatchRetryRate      float64
	MinMicroBatchRetryRate      float64
	MaxMicroBatchIntervalMillis int64
	EntriesCodec                string
	CreateOnly                  bool
	DryRun                      bool

	// Output
	LogFormat string
	LogLevel  string

	// Environment
	DynamoDBEndpoint string
	S3Endpoint       string
	MinioAccessKey   string
	MinioSecretKey   string
}

// MissingOptionsError lists required flags that were not given.
type MissingOptionsError struct {
	Flags []string
}

func (e *MissingOptionsError) Error() string {
	quoted := make([]string, len(e.Flags))
	for i, f := range e.Flags {
		quoted[i] = "[" + f + "]"
	}
	return "the following options are required: " + strings.Join(quoted, ", ")
}

// NewFlagSet returns a configured FlagSet with custom usage/help.
func NewFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), `%s: load variant-call Avro files into DynamoDB

Usage of %s:
`, name, name)
		fs.PrintDefaults()
	}
	return fs
}

// ParseArgs registers and parses all flags, returns an Options struct.
// Environment settings are not applied; see EnvOverlay.
func ParseArgs(fs *flag.FlagSet, argv []string) (Options, error) {
	defaults := bulk.DefaultExecutionOptions()

	var opt Options
	var help bool

	// Destination & source
	fs.StringVar(&opt.Database, "database", "", "destination database name [*]")
	fs.StringVar(&opt.Container, "container", "", "destination container name [*]")
	fs.StringVar(&opt.AvroDir, "avro-dir", "", "directory of .avro files: path | s3://bucket/prefix | minio://host:port/bucket/prefix [*]")

	// Bundling
	fs.Int64Var(&opt.MaxRecords, "max-records", 0, "stop after N records (0 = all) [0]")
	fs.Int64Var(&opt.NumProgress, "num-progress", bundle.DefaultNumProgress, "records between progress messages [1000000]")
	fs.IntVar(&opt.MaxRecordsPerDocument, "max-records-per-document", bundle.DefaultMaxEntriesPerDocument, "maximum entries per document [10000]")
	fs.StringVar(&opt.DropState, "drop-state", "", "exclude records with this state value []")

	// Submission
	fs.IntVar(&opt.SubmissionBatchSize, "submission-batch-size", gvsingest.DefaultSubmissionBatchSize, "documents per submission window [100]")
	fs.BoolVar(&opt.ContinuousFlux, "continuous-flux", false, "stream all files and submit windows concurrently [false]")
	fs.IntVar(&opt.MaxInFlightWindows, "max-inflight-windows", 0, "cap concurrent windows in continuous mode (0 = unbounded) [0]")

	// Transport
	fs.Int64Var(&opt.TargetThroughput, "target-throughput", 0, "target items per second (0 = unlimited) [0]")
	fs.IntVar(&opt.MaxMicroBatchSize, "max-micro-batch-size", defaults.MaxMicroBatchSize, "items per write call [25]")
	fs.IntVar(&opt.MaxMicroBatchConcurrency, "max-micro-batch-concurrency", defaults.MaxMicroBatchConcurrency, "concurrent write calls [1]")
	fs.Float64Var(&opt.MaxMicroBatchRetryRate, "max-micro-batch-retry-rate", defaults.MaxMicroBatchRetryRate, "retry rate above which micro-batches shrink [0.2]")
	fs.Float64Var(&opt.MinMicroBatchRetryRate, "min-micro-batch-retry-rate", defaults.MinMicroBatchRetryRate, "retry rate below which micro-batches grow [0.1]")
	fs.Int64Var(&opt.MaxMicroBatchIntervalMillis, "max-micro-batch-interval-millis", defaults.MaxMicroBatchInterval.Milliseconds(), "maximum retry backoff in ms [1000]")
	fs.StringVar(&opt.EntriesCodec, "entries-codec", defaults.EntriesCodec.Name(), "entries compression: none | zstd | lz4 [zstd]")
	fs.BoolVar(&opt.CreateOnly, "create-only", false, "fail with 409 instead of overwriting existing documents [false]")
	fs.BoolVar(&opt.DryRun, "dry-run", false, "bundle and marshal without writing [false]")

	// Output
	fs.StringVar(&opt.LogFormat, "log-format", LogFormatText, "log format: text | json [text]")
	fs.StringVar(&opt.LogLevel, "log-level", "info", "log level: debug | info | warn | error [info]")

	fs.BoolVar(&help, "h", false, "show this help message (shorthand) [false]")

	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return opt, err
		}
		return opt, &gvsingest.ConfigurationError{Field: "arguments", Reason: err.Error()}
	}
	if help {
		fs.Usage()
		return opt, flag.ErrHelp
	}

	var missing []string
	for _, req := range []struct{ flag, value string }{
		{"--database", opt.Database},
		{"--container", opt.Container},
		{"--avro-dir", opt.AvroDir},
	} {
		if req.value == "" {
			missing = append(missing, req.flag)
		}
	}
	if len(missing) > 0 {
		return opt, &MissingOptionsError{Flags: missing}
	}
	return opt, nil
}

// EnvOverlay applies environment settings. Only known keys are read; empty
// values are ignored.
func (o *Options) EnvOverlay(environ []string) {
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || val == "" {
			continue
		}
		switch key {
		case "GVS_DYNAMODB_ENDPOINT":
			o.DynamoDBEndpoint = strings.TrimSpace(val)
		case "GVS_S3_ENDPOINT":
			o.S3Endpoint = strings.TrimSpace(val)
		case "MINIO_ACCESS_KEY":
			o.MinioAccessKey = val
		case "MINIO_SECRET_KEY":
			o.MinioSecretKey = val
		}
	}
}

// Validate checks value ranges. Errors are *gvsingest.ConfigurationError.
func (o Options) Validate() error {
	bad := func(field, reason string) error {
		return &gvsingest.ConfigurationError{Field: field, Reason: reason}
	}
	switch {
	case o.MaxRecords < 0:
		return bad("max-records", "must not be negative")
	case o.NumProgress < 1:
		return bad("num-progress", "must be positive")
	case o.MaxRecordsPerDocument < 1:
		return bad("max-records-per-document", "must be positive")
	case o.SubmissionBatchSize < 1:
		return bad("submission-batch-size", "must be positive")
	case o.MaxInFlightWindows < 0:
		return bad("max-inflight-windows", "must not be negative")
	case o.TargetThroughput < 0:
		return bad("target-throughput", "must not be negative")
	case o.MaxMicroBatchSize < 1 || o.MaxMicroBatchSize > bulk.MaxBatchWriteItems:
		return bad("max-micro-batch-size", fmt.Sprintf("must be in [1, %d]", bulk.MaxBatchWriteItems))
	case o.MaxMicroBatchConcurrency < 1:
		return bad("max-micro-batch-concurrency", "must be positive")
	case o.MinMicroBatchRetryRate < 0 || o.MaxMicroBatchRetryRate > 1 || o.MinMicroBatchRetryRate > o.MaxMicroBatchRetryRate:
		return bad("min-micro-batch-retry-rate", "must satisfy 0 <= min <= max <= 1")
	case o.MaxMicroBatchIntervalMillis < 1:
		return bad("max-micro-batch-interval-millis", "must be positive")
	case o.LogFormat != LogFormatText && o.LogFormat != LogFormatJSON:
		return bad("log-format", fmt.Sprintf("unknown format %q", o.LogFormat))
	}
	if _, err := codec.ByName(o.EntriesCodec); err != nil {
		return bad("entries-codec", err.Error())
	}
	if _, err := o.Level(); err != nil {
		return bad("log-level", err.Error())
	}
	if _, err := ParseLocation(o.AvroDir); err != nil {
		return bad("avro-dir", err.Error())
	}
	return nil
}

// TableName is the destination table: <database>.<container>.
func (o Options) TableName() string {
	return o.Database + "." + o.Container
}

// Level parses LogLevel.
func (o Options) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(o.LogLevel)); err != nil {
		return 0, err
	}
	return l, nil
}

// Logger builds the logger selected by LogFormat and LogLevel, writing to w.
func (o Options) Logger(w io.Writer) *gvsingest.Logger {
	level, err := o.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	if o.LogFormat == LogFormatJSON {
		return gvsingest.NewJSONLogger(w, level)
	}
	return gvsingest.NewTextLogger(w, level)
}

// ExecutionOptions maps the transport flags.
func (o Options) ExecutionOptions() (bulk.ExecutionOptions, error) {
	c, err := codec.ByName(o.EntriesCodec)
	if err != nil {
		return bulk.ExecutionOptions{}, err
	}
	opts := bulk.DefaultExecutionOptions()
	opts.MaxMicroBatchSize = o.MaxMicroBatchSize
	opts.MaxMicroBatchConcurrency = o.MaxMicroBatchConcurrency
	opts.MinMicroBatchRetryRate = o.MinMicroBatchRetryRate
	opts.MaxMicroBatchRetryRate = o.MaxMicroBatchRetryRate
	opts.MaxMicroBatchInterval = time.Duration(o.MaxMicroBatchIntervalMillis) * time.Millisecond
	opts.TargetThroughput = o.TargetThroughput
	opts.EntriesCodec = c
	opts.CreateOnly = o.CreateOnly
	return opts, nil
}

// LoaderOptions maps the bundling and submission flags.
func (o Options) LoaderOptions(logger *gvsingest.Logger) []gvsingest.Option {
	return []gvsingest.Option{
		gvsingest.WithMaxEntriesPerDocument(o.MaxRecordsPerDocument),
		gvsingest.WithDropState(o.DropState),
		gvsingest.WithNumProgress(o.NumProgress),
		gvsingest.WithMaxRecords(o.MaxRecords),
		gvsingest.WithSubmissionBatchSize(o.SubmissionBatchSize),
		gvsingest.WithContinuous(o.ContinuousFlux),
		gvsingest.WithMaxInFlightWindows(o.MaxInFlightWindows),
		gvsingest.WithLogger(logger),
	}
}

// IsConfigError reports errors that should exit with status 2.
func IsConfigError(err error) bool {
	var ce *gvsingest.ConfigurationError
	var me *MissingOptionsError
	return errors.As(err, &ce) || errors.As(err, &me)
}
