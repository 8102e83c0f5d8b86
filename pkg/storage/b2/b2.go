package b2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	rcloneb2 "github.com/rclone/rclone/backend/b2"
	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/config/configmap"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/scan2pdf/pkg/crypt"
	"github.com/denysvitali/scan2pdf/pkg/models"
	"github.com/denysvitali/scan2pdf/pkg/storage/model"
	"github.com/denysvitali/scan2pdf/pkg/storage/rclone"
)

var log = logrus.StandardLogger().WithField("package", "storage/b2")
var _ model.RWStorage = (*B2)(nil)
var _ model.DocumentStorer = (*B2)(nil)
var _ model.DocumentRetriever = (*B2)(nil)
var _ model.Lister = (*B2)(nil)

const documentsPrefix = "documents"

type B2 struct {
	b2fs       fs.Fs
	bucketName string
	crypt      *crypt.Crypt
}

func (b *B2) put(reader io.Reader, remote string, modTime time.Time) (err error) {
	ctx := context.Background()

	if b.crypt != nil {
		reader, err = b.crypt.Encrypt(reader)
		if err != nil {
			return err
		}
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	src := rclone.NewBufferObject(b.bucketName, remote, modTime, data)
	obj, err := b.b2fs.Put(ctx, bytes.NewReader(data), src)
	if err != nil {
		return fmt.Errorf("upload %s: %w", remote, err)
	}
	log.Debugf("uploaded %s (%d bytes)", obj.Remote(), obj.Size())
	return nil
}

func (b *B2) get(remote string) (io.ReadSeeker, time.Time, error) {
	ctx := context.Background()
	obj, err := b.b2fs.NewObject(ctx, remote)
	if err != nil {
		if errors.Is(err, fs.ErrorObjectNotFound) {
			return nil, time.Time{}, os.ErrNotExist
		}
		return nil, time.Time{}, err
	}

	objReader, err := obj.Open(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer objReader.Close()

	var reader io.ReadSeeker
	if b.crypt != nil {
		reader, err = b.crypt.Decrypt(objReader)
		if err != nil {
			return nil, time.Time{}, err
		}
	} else {
		buffer := bytes.NewBuffer(nil)
		_, err = io.Copy(buffer, objReader)
		if err != nil {
			return nil, time.Time{}, err
		}
		reader = bytes.NewReader(buffer.Bytes())
	}
	return reader, obj.ModTime(ctx), nil
}

func (b *B2) Store(page models.ScannedPage) error {
	if _, err := page.Reader.Seek(0, io.SeekStart); err != nil {
		return err
	}
	err := b.put(page.Reader, fileName(page.ScanId, page.SequenceId, page.Extension()), page.ScanTime)
	if _, seekErr := page.Reader.Seek(0, io.SeekStart); err == nil {
		err = seekErr
	}
	return err
}

func (b *B2) StoreDocument(doc models.Document) (string, error) {
	if doc.Name == "" || strings.Contains(doc.Name, "/") {
		return "", fmt.Errorf("bad document name %q", doc.Name)
	}
	if _, err := doc.Reader.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	remote := documentName(doc)
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if err := b.put(doc.Reader, remote, createdAt); err != nil {
		return "", err
	}
	return fmt.Sprintf("b2://%s/%s", b.bucketName, remote), nil
}

func documentName(doc models.Document) string {
	if doc.ScanId == "" {
		return path.Join(documentsPrefix, doc.Name)
	}
	return path.Join(documentsPrefix, doc.ScanId, doc.Name)
}

func fileName(scanId string, sequenceNumber int, ext string) string {
	return fmt.Sprintf("%s/%d.%s", scanId, sequenceNumber, ext)
}

func (b *B2) Retrieve(scanId string, sequenceId int) (*models.ScannedPage, error) {
	var lastErr error
	for _, ext := range []string{"jpg", "png", "tiff"} {
		reader, modTime, err := b.get(fileName(scanId, sequenceId, ext))
		if err != nil {
			lastErr = err
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		page := remoteToScannedPage(fileName(scanId, sequenceId, ext))
		page.Reader = reader
		page.ScanTime = modTime
		return &page, nil
	}
	return nil, lastErr
}

// RetrieveDocument fetches documents/<name>, name may contain the scan id
// as a prefix ("<scanId>/ScannedDocument.pdf").
func (b *B2) RetrieveDocument(name string) (*models.Document, error) {
	reader, modTime, err := b.get(path.Join(documentsPrefix, name))
	if err != nil {
		return nil, err
	}
	return &models.Document{
		Name:      path.Base(name),
		Reader:    reader,
		CreatedAt: modTime,
	}, nil
}

// ListFiles describes the pages archived for scanId, ordered by sequence
func (b *B2) ListFiles(scanId string) ([]models.ScannedPage, error) {
	ctx := context.Background()
	objects, err := b.b2fs.List(ctx, scanId)
	if err != nil {
		return nil, err
	}

	var files []models.ScannedPage
	for _, obj := range objects {
		files = append(files, objToScannedPage(obj))
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].SequenceId < files[j].SequenceId
	})
	return files, nil
}

func objToScannedPage(obj fs.DirEntry) models.ScannedPage {
	return remoteToScannedPage(obj.Remote())
}

func remoteToScannedPage(remote string) models.ScannedPage {
	s := models.ScannedPage{}
	base := path.Base(remote)
	s.ScanId = path.Dir(remote)
	ext := path.Ext(base)
	switch ext {
	case ".png":
		s.MimeType = "image/png"
	case ".tiff":
		s.MimeType = "image/tiff"
	default:
		s.MimeType = "image/jpeg"
	}
	seqId, err := strconv.ParseInt(strings.TrimSuffix(base, ext), 10, 64)
	if err == nil {
		s.SequenceId = int(seqId)
	}
	return s
}

type Config struct {
	Account    string
	Key        string
	BucketName string

	// Encryption specific
	Passphrase string
}

func (c Config) validate() error {
	if c.Account == "" {
		return fmt.Errorf("account is required")
	}
	if c.Key == "" {
		return fmt.Errorf("key is required")
	}
	if c.BucketName == "" {
		return fmt.Errorf("bucket name is required")
	}
	return nil
}

func New(config Config) (*B2, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	if len(config.Passphrase) == 0 {
		log.Warnf("no passphrase provided, encryption will be disabled")
	}

	b2fs, err := rcloneb2.NewFs(context.Background(),
		"b2",
		config.BucketName+"/",
		configmap.Simple{
			"account":    config.Account,
			"key":        config.Key,
			"chunk_size": "5M",
		},
	)
	if err != nil {
		return nil, err
	}

	b := &B2{
		bucketName: config.BucketName,
		b2fs:       b2fs,
	}

	if len(config.Passphrase) != 0 {
		b.crypt, err = crypt.New(config.Passphrase)
		if err != nil {
			return nil, err
		}
	}

	return b, nil
}
