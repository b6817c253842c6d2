package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/gvsingest"
	"github.com/hupe1980/gvsingest/blobstore"
	"github.com/hupe1980/gvsingest/blobstore/minio"
	"github.com/hupe1980/gvsingest/blobstore/s3"
	"github.com/hupe1980/gvsingest/bulk"
	"github.com/hupe1980/gvsingest/internal/cli"
	"github.com/hupe1980/gvsingest/source"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Exit codes.
const (
	exitOK     = 0
	exitFatal  = 1
	exitConfig = 2
)

func run(ctx context.Context, argv, environ []string, stdout, stderr io.Writer) int {
	opts, err := configure(argv, environ, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitCode(err)
	}

	logger := opts.Logger(stderr)

	// AvroDir was checked by Validate.
	loc, _ := cli.ParseLocation(opts.AvroDir)

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg == nil {
			cfg, err := config.LoadDefaultConfig(ctx)
			if err != nil {
				return aws.Config{}, fmt.Errorf("load aws config: %w", err)
			}
			awsCfg = &cfg
		}
		return *awsCfg, nil
	}

	store, err := newStore(loc, opts, loadAWS)
	if err != nil {
		logger.Error("open source", "location", loc.String(), "error", err)
		return exitCode(err)
	}

	exec, err := newExecutor(opts, loadAWS)
	if err != nil {
		logger.Error("create executor", "error", err)
		return exitCode(err)
	}

	loader, err := gvsingest.New(store, exec, opts.LoaderOptions(logger)...)
	if err != nil {
		_ = exec.Close()
		logger.Error("create loader", "error", err)
		return exitCode(err)
	}
	defer func() {
		if err := loader.Close(); err != nil {
			logger.Warn("close executor", "error", err)
		}
	}()

	paths, err := source.FindPaths(ctx, store, "")
	if err != nil {
		logger.Error("list source files", "location", loc.String(), "error", err)
		return exitFatal
	}
	logger.Info("starting ingest",
		"location", loc.String(),
		"files", len(paths),
		"table", opts.TableName(),
		"dry_run", opts.DryRun,
	)

	stats, err := loader.Load(ctx, paths)
	if err != nil {
		return exitFatal
	}

	_, _ = fmt.Fprintf(stdout, "records=%d documents=%d windows=%d succeeded=%d failed=%d\n",
		stats.Records, stats.Documents, stats.Windows, stats.Succeeded, stats.Failed)
	return exitOK
}

// configure parses argv, applies the environment and validates the result.
func configure(argv, environ []string, stderr io.Writer) (cli.Options, error) {
	fs := cli.NewFlagSet("gvs-ingest")
	fs.SetOutput(stderr)

	opts, err := cli.ParseArgs(fs, argv)
	if err != nil {
		return opts, err
	}
	opts.EnvOverlay(environ)
	return opts, opts.Validate()
}

// exitCode maps a setup error to the process status.
func exitCode(err error) int {
	if cli.IsConfigError(err) {
		return exitConfig
	}
	return exitFatal
}

func newStore(loc cli.Location, opts cli.Options, loadAWS func() (aws.Config, error)) (blobstore.Store, error) {
	switch loc.Scheme {
	case cli.SchemeS3:
		cfg, err := loadAWS()
		if err != nil {
			return nil, err
		}
		client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
			if opts.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(opts.S3Endpoint)
				o.UsePathStyle = true
			}
		})
		return s3.NewStore(client, loc.Bucket, loc.Prefix), nil
	case cli.SchemeMinio:
		client, err := miniogo.New(loc.Endpoint, &miniogo.Options{
			Creds: credentials.NewStaticV4(opts.MinioAccessKey, opts.MinioSecretKey, ""),
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return minio.NewStore(client, loc.Bucket, loc.Prefix), nil
	default:
		return blobstore.NewLocalStore(loc.Path), nil
	}
}

func newExecutor(opts cli.Options, loadAWS func() (aws.Config, error)) (bulk.Executor, error) {
	execOpts, err := opts.ExecutionOptions()
	if err != nil {
		return nil, &gvsingest.ConfigurationError{Field: "entries-codec", Reason: err.Error()}
	}
	if opts.DryRun {
		return bulk.NewMemoryExecutor(execOpts.EntriesCodec), nil
	}

	cfg, err := loadAWS()
	if err != nil {
		return nil, err
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.DynamoDBEndpoint)
		}
	})
	exec, err := bulk.NewDynamoDBExecutor(client, opts.TableName(), execOpts)
	if err != nil {
		return nil, err
	}
	return exec, nil
}
