// Package cli parses and validates the gvs-ingest command line.
package cli
