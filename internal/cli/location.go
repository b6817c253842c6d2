package cli

import (
	"errors"
	"fmt"
	"strings"
)

// Location schemes.
const (
	SchemeLocal = "file"
	SchemeS3    = "s3"
	SchemeMinio = "minio"
)

// Location is a parsed --avro-dir value.
type Location struct {
	Scheme string
	// Endpoint is host:port for minio.
	Endpoint string
	Bucket   string
	Prefix   string
	// Path is the directory for local locations.
	Path string
}

// ParseLocation parses s3://bucket/prefix, minio://host:port/bucket/prefix,
// file:///dir or a plain directory path.
func ParseLocation(uri string) (Location, error) {
	if uri == "" {
		return Location{}, errors.New("empty location")
	}

	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return Location{Scheme: SchemeLocal, Path: uri}, nil
	}

	switch scheme {
	case SchemeLocal:
		if rest == "" {
			return Location{}, fmt.Errorf("%q: missing path", uri)
		}
		return Location{Scheme: SchemeLocal, Path: rest}, nil
	case SchemeS3:
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return Location{}, fmt.Errorf("%q: missing bucket", uri)
		}
		return Location{Scheme: SchemeS3, Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, nil
	case SchemeMinio:
		endpoint, path, _ := strings.Cut(rest, "/")
		bucket, prefix, _ := strings.Cut(path, "/")
		if endpoint == "" || bucket == "" {
			return Location{}, fmt.Errorf("%q: want minio://host:port/bucket/prefix", uri)
		}
		return Location{Scheme: SchemeMinio, Endpoint: endpoint, Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, nil
	default:
		return Location{}, fmt.Errorf("%q: unsupported scheme %q", uri, scheme)
	}
}

func (l Location) String() string {
	switch l.Scheme {
	case SchemeS3:
		return "s3://" + l.Bucket + "/" + l.Prefix
	case SchemeMinio:
		return "minio://" + l.Endpoint + "/" + l.Bucket + "/" + l.Prefix
	default:
		return l.Path
	}
}
