package credstore

import (
	"context"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/authgate/internal/xerrors"
)

// Source fetches the raw credentials document.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	// String names the source for logs.
	String() string
}

// FileSource reads the document from the local filesystem.
type FileSource struct {
	Path string
}

func (f FileSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "open credentials file %s", f.Path)
	}
	defer fh.Close()
	b, err := readLimited(fh)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read credentials file %s", f.Path)
	}
	return b, nil
}

func (f FileSource) String() string { return "file:" + f.Path }

// SSMGetter is the subset of *ssm.Client used by SSMSource.
type SSMGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMSource reads the document from a (SecureString) SSM parameter.
type SSMSource struct {
	Client SSMGetter
	Param  string
}

func (s SSMSource) Fetch(ctx context.Context) ([]byte, error) {
	out, err := s.Client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.Param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get SSM parameter %s", s.Param)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, xerrors.Newf("SSM parameter %s has no value", s.Param)
	}
	return []byte(*out.Parameter.Value), nil
}

func (s SSMSource) String() string { return "ssm:" + s.Param }

// S3Getter is the subset of *s3.Client used by S3Source.
type S3Getter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads the document from an S3 object.
type S3Source struct {
	Client S3Getter
	Bucket string
	Key    string
}

func (s S3Source) Fetch(ctx context.Context) ([]byte, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get S3 object s3://%s/%s", s.Bucket, s.Key)
	}
	defer out.Body.Close()
	b, err := readLimited(out.Body)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read S3 object s3://%s/%s", s.Bucket, s.Key)
	}
	return b, nil
}

func (s S3Source) String() string { return "s3://" + s.Bucket + "/" + s.Key }

// NewSSMSource builds an SSMSource from the default AWS config chain.
func NewSSMSource(ctx context.Context, param string) (SSMSource, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return SSMSource{}, xerrors.Wrap(err, "load AWS config")
	}
	return SSMSource{Client: ssm.NewFromConfig(awsCfg), Param: param}, nil
}

// NewS3Source builds an S3Source from the default AWS config chain.
func NewS3Source(ctx context.Context, bucket, key string) (S3Source, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return S3Source{}, xerrors.Wrap(err, "load AWS config")
	}
	return S3Source{Client: s3.NewFromConfig(awsCfg), Bucket: bucket, Key: key}, nil
}

// readLimited reads one byte past the limit so Parse can report oversize
// documents instead of silently truncating them.
func readLimited(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxDocumentBytes+1))
}
