package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/varserve/varserve/internal/cryptoutil"
	"github.com/varserve/varserve/internal/log"
	"github.com/varserve/varserve/internal/xerrors"
)

type Options struct {
	Logger log.Logger

	// SSMParam names the parameter holding the current bundle SHA-256.
	SSMParam string

	// S3 location for bundles: s3://{bucket}/{prefix}/{sha256}.tar.gz
	S3Bucket string
	S3Prefix string

	// ExtractDir is where the bundle is unpacked. Each release lands in
	// a checksum-named subdirectory so a re-fetch never tears down the
	// tree the index was built over.
	ExtractDir string

	// AWSConfig overrides the default credential chain, used by tests.
	AWSConfig *aws.Config
}

// Release describes a fetched and verified bundle on disk.
type Release struct {
	// Dir is the extracted asset root.
	Dir string
	// SHA256 is the verified bundle checksum.
	SHA256 string
	// FetchedAt is when the download completed.
	FetchedAt time.Time
}

// ReleaseID is the short checksum, enough to tell releases apart.
func (r *Release) ReleaseID() string {
	if len(r.SHA256) > 12 {
		return r.SHA256[:12]
	}
	return r.SHA256
}

func (r *Release) ReleaseChecksum() string { return r.SHA256 }

type Fetcher struct {
	opts      Options
	ssmClient *ssm.Client
	s3Client  *s3.Client
	logger    log.Logger
}

func NewFetcher(ctx context.Context, opts Options) (*Fetcher, error) {
	if opts.SSMParam == "" {
		return nil, xerrors.New("SSMParam is required")
	}
	if opts.S3Bucket == "" {
		return nil, xerrors.New("S3Bucket is required")
	}
	if opts.ExtractDir == "" {
		return nil, xerrors.New("ExtractDir is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	var awsCfg aws.Config
	var err error
	if opts.AWSConfig != nil {
		awsCfg = *opts.AWSConfig
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load AWS config")
		}
	}

	return &Fetcher{
		opts:      opts,
		ssmClient: ssm.NewFromConfig(awsCfg),
		s3Client:  s3.NewFromConfig(awsCfg),
		logger:    opts.Logger,
	}, nil
}

// CurrentChecksum reads the release pointer from SSM.
func (f *Fetcher) CurrentChecksum(ctx context.Context) (string, error) {
	out, err := f.ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(f.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", f.opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", f.opts.SSMParam)
	}

	sum := strings.TrimSpace(*out.Parameter.Value)
	if sum == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", f.opts.SSMParam)
	}

	return sum, nil
}

// s3Key returns the object key for a given checksum.
func (f *Fetcher) s3Key(sum string) string {
	if f.opts.S3Prefix != "" {
		return fmt.Sprintf("%s/%s.tar.gz", f.opts.S3Prefix, sum)
	}
	return fmt.Sprintf("%s.tar.gz", sum)
}

// download pulls the bundle to a temp file and verifies its checksum.
func (f *Fetcher) download(ctx context.Context, sum string) (string, error) {
	key := f.s3Key(sum)

	f.logger.Info(ctx, "downloading asset bundle",
		"bucket", f.opts.S3Bucket,
		"key", key,
		"expected_sha256", sum,
	)

	out, err := f.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.opts.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get S3 object s3://%s/%s", f.opts.S3Bucket, key)
	}
	defer out.Body.Close()

	tmpFile, err := os.CreateTemp("", "asset-bundle-*.tar.gz")
	if err != nil {
		return "", xerrors.Wrap(err, "create temp file")
	}
	tmpPath := tmpFile.Name()

	written, actual, err := copyWithHash(tmpFile, io.LimitReader(out.Body, maxBundleSize+1))
	tmpFile.Close()
	if err != nil {
		os.Remove(tmpPath)
		return "", xerrors.Wrap(err, "download bundle")
	}
	if written > maxBundleSize {
		os.Remove(tmpPath)
		return "", xerrors.Newf("bundle exceeds max size (%d bytes, limit %d)", written, maxBundleSize)
	}

	if !cryptoutil.HashEqual(actual, sum) {
		os.Remove(tmpPath)
		return "", xerrors.Newf("checksum mismatch: expected %s, got %s", sum, actual)
	}

	f.logger.Info(ctx, "downloaded asset bundle", "bytes", written)
	return tmpPath, nil
}

// Fetch resolves the current release, downloads, verifies, and extracts
// it. The returned Release.Dir is ready for indexing.
func (f *Fetcher) Fetch(ctx context.Context) (*Release, error) {
	sum, err := f.CurrentChecksum(ctx)
	if err != nil {
		return nil, err
	}
	return f.FetchChecksum(ctx, sum)
}

// FetchChecksum fetches a specific bundle by checksum.
func (f *Fetcher) FetchChecksum(ctx context.Context, sum string) (*Release, error) {
	tarPath, err := f.download(ctx, sum)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tarPath)

	extractDir := filepath.Join(f.opts.ExtractDir, sum)
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return nil, xerrors.Wrapf(err, "create extract dir %s", extractDir)
	}

	if err := extractTarGz(tarPath, extractDir); err != nil {
		os.RemoveAll(extractDir)
		return nil, xerrors.Wrap(err, "extract bundle")
	}

	f.logger.Info(ctx, "extracted asset bundle",
		"sha256", sum,
		"dest", extractDir,
	)

	return &Release{
		Dir:       extractDir,
		SHA256:    sum,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// copyWithHash copies src to dst while computing SHA-256.
func copyWithHash(dst io.Writer, src io.Reader) (written int64, hash string, err error) {
	h := sha256.New()
	w := io.MultiWriter(dst, h)

	written, err = io.Copy(w, src)
	if err != nil {
		return written, "", err
	}

	return written, hex.EncodeToString(h.Sum(nil)), nil
}
