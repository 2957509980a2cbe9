// A simple abstraction for durable byte storage keyed by (dir, name)
package bytestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/guardianbot/guardian/config"
)

// ErrNotFound is returned by Read when no record exists for the key.
var ErrNotFound = errors.New("bytestore: record not found")

type Store struct {
	c *config.Storage

	// If s3-like
	minio *minio.Client
}

func New(c *config.Storage) (s *Store, err error) {
	s = &Store{
		c: c,
	}

	switch c.Type {
	case "s3-like":
		s.minio, err = minio.New(c.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
			Secure: c.Secure,
		})

		if err != nil {
			return nil, err
		}
	case "local":
		err = os.MkdirAll(c.Path, 0755)

		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("invalid storage type")
	}

	return s, nil
}

// Saves a record to the store.
//
// Local saves write to a temp file in the target directory and rename it into
// place so a crash mid-write never leaves a torn record behind.
func (s *Store) Save(ctx context.Context, dir, name string, data *bytes.Buffer) error {
	switch s.c.Type {
	case "local":
		err := os.MkdirAll(filepath.Join(s.c.Path, dir), 0755)

		if err != nil {
			return err
		}

		f, err := os.CreateTemp(filepath.Join(s.c.Path, dir), name+".tmp-*")

		if err != nil {
			return err
		}

		tmpName := f.Name()

		_, err = io.Copy(f, data)

		if err != nil {
			f.Close()
			os.Remove(tmpName)
			return err
		}

		err = f.Close()

		if err != nil {
			os.Remove(tmpName)
			return err
		}

		return os.Rename(tmpName, filepath.Join(s.c.Path, dir, name))
	case "s3-like":
		_, err := s.minio.PutObject(ctx, s.c.Path, dir+"/"+name, data, int64(data.Len()), minio.PutObjectOptions{})

		if err != nil {
			return err
		}

		return nil
	default:
		return fmt.Errorf("operation not supported for storage type %s", s.c.Type)
	}
}

// Reads a record from the store, returning ErrNotFound when absent.
func (s *Store) Read(ctx context.Context, dir, name string) ([]byte, error) {
	switch s.c.Type {
	case "local":
		data, err := os.ReadFile(filepath.Join(s.c.Path, dir, name))

		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		if err != nil {
			return nil, err
		}

		return data, nil
	case "s3-like":
		obj, err := s.minio.GetObject(ctx, s.c.Path, dir+"/"+name, minio.GetObjectOptions{})

		if err != nil {
			return nil, err
		}

		defer obj.Close()

		data, err := io.ReadAll(obj)

		if err != nil {
			var merr minio.ErrorResponse

			if errors.As(err, &merr) && merr.Code == "NoSuchKey" {
				return nil, ErrNotFound
			}

			return nil, err
		}

		return data, nil
	default:
		return nil, fmt.Errorf("operation not supported for storage type %s", s.c.Type)
	}
}

// List returns the names of all records under dir.
func (s *Store) List(ctx context.Context, dir string) ([]string, error) {
	switch s.c.Type {
	case "local":
		entries, err := os.ReadDir(filepath.Join(s.c.Path, dir))

		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		if err != nil {
			return nil, err
		}

		var names []string

		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			names = append(names, e.Name())
		}

		return names, nil
	case "s3-like":
		var names []string

		for obj := range s.minio.ListObjects(ctx, s.c.Path, minio.ListObjectsOptions{Prefix: dir + "/"}) {
			if obj.Err != nil {
				return nil, obj.Err
			}
			names = append(names, strings.TrimPrefix(obj.Key, dir+"/"))
		}

		return names, nil
	default:
		return nil, fmt.Errorf("operation not supported for storage type %s", s.c.Type)
	}
}

// Deletes a record from the store
func (s *Store) Delete(ctx context.Context, dir, name string) error {
	switch s.c.Type {
	case "local":
		err := os.Remove(filepath.Join(s.c.Path, dir, name))

		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return err
	case "s3-like":
		return s.minio.RemoveObject(ctx, s.c.Path, dir+"/"+name, minio.RemoveObjectOptions{})
	default:
		return fmt.Errorf("operation not supported for storage type %s", s.c.Type)
	}
}

// Quarantine moves a corrupt record to a timestamped side location under
// quarantine/<dir> so the payload stays available for diagnosis while the
// primary key becomes free for a fresh write.
func (s *Store) Quarantine(ctx context.Context, dir, name string, payload []byte) error {
	qname := fmt.Sprintf("%s.%d", name, time.Now().Unix())

	return s.Save(ctx, filepath.Join("quarantine", dir), qname, bytes.NewBuffer(payload))
}
