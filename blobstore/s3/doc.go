// Package s3 provides an S3 implementation of the blobstore.Store interface
// for reading record files.
//
// # Usage
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "gvs/vets/")
//
// # Features
//
//   - Objects up to the prefetch threshold are downloaded whole with the
//     s3 manager (parallel ranged parts)
//   - Larger objects are read with ranged GETs
//   - Automatic pagination for listing
package s3
