// Package storage defines the byte stores behind the image pipeline: the
// source store holding original images, the cache store holding generated
// derivatives and the optional watermarks store. Backends (local disk via
// go-billy, S3-compatible buckets via minio-go, read-only HTTP origins) all
// implement Backend; Source and Cache layer the error taxonomy and the
// operations the derivative generator needs on top of a Backend.
package storage
