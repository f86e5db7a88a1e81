package s3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	"github.com/adobe/aio-tvm/internal/core"
)

var _ Backend = (*awsBackend)(nil)

type awsBackend struct {
	region string
	s3     *awss3.Client
	sts    *sts.Client
}

// NewAWSBackend builds a Backend authenticated with the static keys in p.
func NewAWSBackend(p Params) (Backend, error) {
	if p.AccessKeyID == "" || p.SecretAccessKey == "" {
		return nil, fmt.Errorf("aws credentials cannot be empty")
	}
	cfg := aws.Config{
		Region:      p.Region,
		Credentials: credentials.NewStaticCredentialsProvider(p.AccessKeyID, p.SecretAccessKey, ""),
	}
	return &awsBackend{
		region: p.Region,
		s3:     awss3.NewFromConfig(cfg),
		sts:    sts.NewFromConfig(cfg),
	}, nil
}

func (b *awsBackend) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := b.s3.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return true, nil
	}
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchBucket") {
		return false, nil
	}
	return false, err
}

func (b *awsBackend) CreateBucket(ctx context.Context, bucket string) error {
	input := &awss3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 is the default location and must not be sent as constraint
	if b.region != "" && b.region != DefaultRegion {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(b.region),
		}
	}
	_, err := b.s3.CreateBucket(ctx, input)
	if err == nil {
		return nil
	}
	var owned *s3types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return fmt.Errorf("bucket %s: %w", bucket, core.ErrAlreadyExists)
	}
	return err
}

func (b *awsBackend) TagBucket(ctx context.Context, bucket string, tags map[string]string) error {
	tagSet := make([]s3types.Tag, 0, len(tags))
	for k, v := range tags {
		tagSet = append(tagSet, s3types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	_, err := b.s3.PutBucketTagging(ctx, &awss3.PutBucketTaggingInput{
		Bucket:  aws.String(bucket),
		Tagging: &s3types.Tagging{TagSet: tagSet},
	})
	return err
}

func (b *awsBackend) FederationToken(ctx context.Context, name, policy string, lease time.Duration) (*Credentials, error) {
	out, err := b.sts.GetFederationToken(ctx, &sts.GetFederationTokenInput{
		Name:            aws.String(name),
		Policy:          aws.String(policy),
		DurationSeconds: aws.Int32(int32(lease / time.Second)),
	})
	if err != nil {
		return nil, err
	}
	if out.Credentials == nil {
		return nil, fmt.Errorf("federation token response has no credentials")
	}
	creds := &Credentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
	}
	if out.Credentials.Expiration != nil {
		creds.Expiration = *out.Credentials.Expiration
	} else {
		creds.Expiration = time.Now().Add(lease)
	}
	return creds, nil
}
