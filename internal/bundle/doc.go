// Package bundle fetches the asset release at startup: the current
// bundle checksum is read from an SSM parameter, the tarball is pulled
// from S3, verified against the checksum, and extracted into the
// directory the index build then walks. When bundle fetching is
// disabled the server indexes whatever is already on disk.
package bundle
