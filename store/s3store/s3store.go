// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package s3store implements an S3-backed object store. Objects are
// stored within a prefix in a bucket:
//
//	s3://bucket/<prefix>/objects/<hex>
//
// Puts are preceded by an existence check, so single-assignment
// enforcement is advisory: two racing writers of the same object may
// both succeed. Gets of objects that have not yet been written poll
// the bucket, paced by the store's admitter.
package s3store

import (
	"bytes"
	"context"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/grailbio/base/data"
	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/retry"
	"github.com/grailbio/conductor"
	"github.com/grailbio/conductor/errors"
	"github.com/grailbio/conductor/internal/s3walker"
	"github.com/grailbio/conductor/log"
	"github.com/grailbio/conductor/values"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	objectsPath = "objects"

	s3partsize    = 8 << 20
	s3concurrency = 5

	// maxS3Ops limits the number of concurrent S3 calls issued by a
	// single store.
	maxS3Ops = 16
)

var (
	// pollPolicy paces polling for unwritten objects when the store
	// has no admitter.
	pollPolicy = retry.Jitter(retry.Backoff(50*time.Millisecond, 5*time.Second, 1.5), 0.2)
	// retryPolicy determines how transient S3 errors are retried.
	retryPolicy = retry.MaxTries(retry.Backoff(500*time.Millisecond, time.Minute, 1.5), 8)
)

// Store is an S3-backed object store. Objects are stored in the
// given bucket under the given prefix, followed by "objects":
//
//	s3://bucket/<prefix>/objects/<hex>
type Store struct {
	// Client is used to issue all S3 calls.
	Client s3iface.S3API
	// Bucket and Prefix name the location in which objects are
	// stored.
	Bucket, Prefix string
	// Log receives store diagnostics.
	Log *log.Logger
	// Admitter paces polling for objects that have not yet been
	// written. This prevents thundering herds against S3 when many
	// tasks await the same object. If Admitter is nil, each waiter
	// backs off independently instead.
	Admitter *rate.Limiter

	once sync.Once
	lim  *limiter.Limiter
	read singleflight.Group
}

var _ conductor.Store = (*Store)(nil)

// New returns a store that keeps objects in the given bucket under
// the given prefix, using client for all S3 calls.
func New(client s3iface.S3API, bucket, prefix string) *Store {
	return &Store{
		Client:   client,
		Bucket:   bucket,
		Prefix:   prefix,
		Admitter: rate.NewLimiter(rate.Every(100*time.Millisecond), 4),
	}
}

// Key returns the key under which the object named by id is stored.
func (s *Store) Key(id conductor.ObjectID) string {
	return path.Join(s.Prefix, objectsPath, id.Hex())
}

// Put stores the value v under the name id. Put returns an error
// with kind errors.DuplicateWrite if id has already been written.
func (s *Store) Put(ctx context.Context, id conductor.ObjectID, v values.T) error {
	if err := s.limiter().Acquire(ctx, 1); err != nil {
		return errors.E("put", id, err)
	}
	defer s.limiter().Release(1)
	switch ok, err := s.head(ctx, id); {
	case err != nil:
		return errors.E("put", id, awsKind(err), err)
	case ok:
		return errors.E("put", id, errors.DuplicateWrite)
	}
	p, err := values.Encode(v)
	if err != nil {
		return errors.E("put", id, err)
	}
	up := s3manager.NewUploaderWithClient(s.Client, func(u *s3manager.Uploader) {
		u.PartSize = s3partsize
		u.Concurrency = s3concurrency
	})
	_, err = up.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key(id)),
		Body:   bytes.NewReader(p),
	})
	if err != nil {
		return errors.E("put", id, awsKind(err), err)
	}
	return nil
}

// Get returns the value stored under the name id, blocking until the
// object is written if it does not yet exist. Transient S3 errors
// are retried.
func (s *Store) Get(ctx context.Context, id conductor.ObjectID) (values.T, error) {
	var polls, retries int
	for {
		v, err := s.load(ctx, id)
		switch {
		case err == nil:
			return v, nil
		case errors.Is(errors.NotExist, err):
			if s.Admitter != nil {
				err = s.Admitter.Wait(ctx)
			} else {
				err = retry.Wait(ctx, pollPolicy, polls)
			}
			if err != nil {
				return nil, errors.E("get", id, err)
			}
			polls++
		case errors.Transient(err):
			if err := retry.Wait(ctx, retryPolicy, retries); err != nil {
				return nil, errors.E("get", id, err)
			}
			retries++
		default:
			return nil, err
		}
	}
}

// load downloads and decodes the object named by id. Concurrent
// loads of the same object are deduplicated.
func (s *Store) load(ctx context.Context, id conductor.ObjectID) (values.T, error) {
	v, err, _ := s.read.Do(id.Hex(), func() (interface{}, error) {
		if err := s.limiter().Acquire(ctx, 1); err != nil {
			return nil, errors.E("get", id, err)
		}
		defer s.limiter().Release(1)
		d := s3manager.NewDownloaderWithClient(s.Client, func(d *s3manager.Downloader) {
			d.PartSize = s3partsize
			d.Concurrency = s3concurrency
		})
		buf := aws.NewWriteAtBuffer(nil)
		_, err := d.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(s.Key(id)),
		})
		if err != nil {
			return nil, errors.E("get", id, awsKind(err), err)
		}
		v, _, err := values.Decode(buf.Bytes())
		if err != nil {
			return nil, errors.E("get", id, errors.Invalid, err)
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Exists tells whether id has been written.
func (s *Store) Exists(ctx context.Context, id conductor.ObjectID) (bool, error) {
	if err := s.limiter().Acquire(ctx, 1); err != nil {
		return false, errors.E("exists", id, err)
	}
	defer s.limiter().Release(1)
	ok, err := s.head(ctx, id)
	if err != nil {
		return false, errors.E("exists", id, awsKind(err), err)
	}
	return ok, nil
}

// Scan invokes handler for each object in the store.
func (s *Store) Scan(ctx context.Context, handler func(conductor.ObjectID) error) error {
	w := s.walker()
	for w.Scan(ctx) {
		id, ok := s.parse(w.Object())
		if !ok {
			continue
		}
		if err := handler(id); err != nil {
			return err
		}
	}
	return w.Err()
}

// Size returns the total size of the objects in the store.
func (s *Store) Size(ctx context.Context) (data.Size, error) {
	w := s.walker()
	var size int64
	for w.Scan(ctx) {
		if _, ok := s.parse(w.Object()); !ok {
			continue
		}
		size += aws.Int64Value(w.Object().Size)
	}
	return data.Size(size), w.Err()
}

// Collect removes any objects in the store that are not also in the
// live set.
func (s *Store) Collect(ctx context.Context, live conductor.Liveset) error {
	w := s.walker()
	var (
		n    int
		size int64
	)
	for w.Scan(ctx) {
		id, ok := s.parse(w.Object())
		if !ok {
			continue
		}
		if live != nil && live.Contains(id) {
			continue
		}
		key := aws.StringValue(w.Object().Key)
		_, err := s.Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			s.Log.Errorf("delete %q: %v", key, err)
			continue
		}
		size += aws.Int64Value(w.Object().Size)
		n++
	}
	s.Log.Printf("collected %v objects (%s)", n, data.Size(size))
	return w.Err()
}

func (s *Store) walker() *s3walker.S3Walker {
	return &s3walker.S3Walker{
		S3:     s.Client,
		Bucket: s.Bucket,
		Prefix: path.Join(s.Prefix, objectsPath) + "/",
	}
}

// parse extracts an object ID from a scanned object. Keys that do
// not name objects are skipped.
func (s *Store) parse(obj *s3.Object) (conductor.ObjectID, bool) {
	d, err := conductor.Digester.Parse(path.Base(aws.StringValue(obj.Key)))
	if err != nil {
		return conductor.ObjectID{}, false
	}
	return conductor.ObjectID(d), true
}

// head reports whether the object named by id exists in the bucket.
func (s *Store) head(ctx context.Context, id conductor.ObjectID) (bool, error) {
	_, err := s.Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key(id)),
	})
	if err == nil {
		return true, nil
	}
	if awsKind(err) == errors.NotExist {
		return false, nil
	}
	return false, err
}

// limiter returns the store's S3 call limiter, initializing it on
// first use so that the zero value of Store remains useful.
func (s *Store) limiter() *limiter.Limiter {
	s.once.Do(func() {
		s.lim = limiter.New()
		s.lim.Release(maxS3Ops)
	})
	return s.lim
}

// awsKind interprets an AWS SDK error into an error kind.
func awsKind(err error) errors.Kind {
	aerr, ok := err.(awserr.Error)
	if !ok {
		return errors.Other
	}
	// Best guess based on Amazon's descriptions:
	switch aerr.Code() {
	// Code NotFound is not documented, but it's what the API actually returns.
	case "NoSuchBucket", "NoSuchKey", "NoSuchVersion", "NotFound":
		return errors.NotExist
	case "AccessDenied", "InvalidRequest", "InvalidArgument", "EntityTooSmall", "EntityTooLarge", "KeyTooLong", "MethodNotAllowed":
		return errors.Fatal
	case "ExpiredToken", "AccountProblem", "ServiceUnavailable", "TokenRefreshRequired", "OperationAborted":
		return errors.Unavailable
	case "PreconditionFailed":
		return errors.Invalid
	case "SlowDown":
		return errors.Temporary
	}
	return errors.Other
}
