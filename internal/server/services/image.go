package services

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	sc "github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

const presignValidity = 15 * time.Minute

var allowedImageExtensions = map[string]struct{}{".png": {}, ".jpg": {}, ".jpeg": {}}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) error {
		_, err := c.DeleteObject(ctx, in)
		return err
	}
)

// ImageUpload tells the client where to PUT the image bytes.
type ImageUpload struct {
	Key string
	URL string
}

// ProfileImageService keeps profile images in S3 compatible storage. The
// profile row only stores the object key.
type ProfileImageService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	logger      logging.Logger
	now         func() time.Time
}

func NewProfileImageService(db *sql.DB, repomanager repomanager.RepositoryManager, config *sc.Config, logger logging.Logger) *ProfileImageService {
	return &ProfileImageService{
		db:          db,
		repomanager: repomanager,
		config:      config,
		logger:      logger.With("module", "images"),
		now:         time.Now,
	}
}

// StorageKey builds a unique object key for a user's image.
func (s *ProfileImageService) StorageKey(userID int64, ext string) string {
	d := s.now()
	return fmt.Sprintf("users/%d/%d/%02d/%v%s", userID, d.Year(), d.Month(), uuid.New(), ext)
}

func (s *ProfileImageService) getClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

// Upload validates the file name, replaces the stored key with a new one
// and returns a presigned PUT URL for it.
func (s *ProfileImageService) Upload(ctx context.Context, userID int64, fileName string) (*ImageUpload, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if _, ok := allowedImageExtensions[ext]; !ok {
		return nil, common.ErrFileNotSupported
	}

	profiles := s.repomanager.Profiles(s.db)
	profile, err := profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}

	bucket := s.config.S3Bucket
	key := s.StorageKey(userID, ext)

	req, err := presignPutObject(newS3PresignClient(client), ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignValidity))
	if err != nil {
		return nil, fmt.Errorf("presign put: %w", err)
	}

	if err := profiles.SetImageKey(ctx, userID, key); err != nil {
		return nil, err
	}

	if profile.ProfileImageKey != "" {
		s.removeObject(ctx, client, profile.ProfileImageKey)
	}

	return &ImageUpload{Key: key, URL: req.URL}, nil
}

// URL returns a presigned GET URL for the user's image, or the configured
// default image when none is set.
func (s *ProfileImageService) URL(ctx context.Context, userID int64) (string, error) {
	profile, err := s.repomanager.Profiles(s.db).Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile.ProfileImageKey == "" {
		return s.config.DefaultProfileImageURL, nil
	}

	client, err := s.getClient(ctx)
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket
	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &profile.ProfileImageKey,
	}, s3.WithPresignExpires(presignValidity))
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

// Delete removes the stored object and clears the key. Without an image it
// does nothing.
func (s *ProfileImageService) Delete(ctx context.Context, userID int64) error {
	profiles := s.repomanager.Profiles(s.db)
	profile, err := profiles.Get(ctx, userID)
	if err != nil {
		return err
	}
	if profile.ProfileImageKey == "" {
		return nil
	}

	client, err := s.getClient(ctx)
	if err != nil {
		return err
	}

	bucket := s.config.S3Bucket
	if err := deleteObject(client, ctx, &s3.DeleteObjectInput{Bucket: &bucket, Key: &profile.ProfileImageKey}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return profiles.SetImageKey(ctx, userID, "")
}

func (s *ProfileImageService) removeObject(ctx context.Context, client *s3.Client, key string) {
	bucket := s.config.S3Bucket
	if err := deleteObject(client, ctx, &s3.DeleteObjectInput{Bucket: &bucket, Key: &key}); err != nil {
		s.logger.Warn(ctx, "failed to remove replaced profile image", "key", key, "error", err)
	}
}
