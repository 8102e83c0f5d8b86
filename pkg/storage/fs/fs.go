package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/scan2pdf/pkg/models"
	"github.com/denysvitali/scan2pdf/pkg/storage/model"
)

var log = logrus.StandardLogger().WithField("package", "storage/fs")

var ErrInvalidPath = errors.New("invalid path")

type Fs struct {
	dir string
}

var _ model.RWStorage = (*Fs)(nil)
var _ model.DocumentStorer = (*Fs)(nil)
var _ model.DocumentRetriever = (*Fs)(nil)
var _ model.Lister = (*Fs)(nil)

// New returns a storage rooted at dir, which must be an existing directory
func New(dir string) (*Fs, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, dir)
	}
	return &Fs{dir: dir}, nil
}

// NewOrCreate is like New but creates dir when it does not exist
func NewOrCreate(dir string) (*Fs, error) {
	_, err := os.Stat(dir)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("unable to create storage directory: %w", err)
		}
	}
	return New(dir)
}

func (fs *Fs) Dir() string {
	return fs.dir
}

func (fs *Fs) scanDir(scanId string) (string, error) {
	if scanId == "" || scanId != filepath.Base(scanId) || scanId == "." || scanId == ".." {
		return "", fmt.Errorf("%w: bad scan id %q", ErrInvalidPath, scanId)
	}
	return filepath.Join(fs.dir, scanId), nil
}

func mimeTypeOf(fileName string) string {
	switch filepath.Ext(fileName) {
	case ".png":
		return "image/png"
	case ".tiff":
		return "image/tiff"
	}
	return "image/jpeg"
}

func (fs *Fs) Retrieve(scanId string, sequenceNumber int) (*models.ScannedPage, error) {
	dir, err := fs.scanDir(scanId)
	if err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("%d.*", sequenceNumber)))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, os.ErrNotExist
	}
	f, err := os.Open(matches[0])
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &models.ScannedPage{
		ScanId:     scanId,
		SequenceId: sequenceNumber,
		ScanTime:   st.ModTime(),
		Reader:     f,
		MimeType:   mimeTypeOf(matches[0]),
	}, nil
}

// ListFiles describes the pages archived for scanId, without their data
func (fs *Fs) ListFiles(scanId string) ([]models.ScannedPage, error) {
	dir, err := fs.scanDir(scanId)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var pages []models.ScannedPage
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		seq, err := strconv.Atoi(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		if err != nil {
			continue
		}
		pages = append(pages, models.ScannedPage{
			ScanId:     scanId,
			SequenceId: seq,
			MimeType:   mimeTypeOf(e.Name()),
		})
	}
	sort.Slice(pages, func(i, j int) bool {
		return pages[i].SequenceId < pages[j].SequenceId
	})
	return pages, nil
}

func (fs *Fs) Store(page models.ScannedPage) error {
	dir, err := fs.scanDir(page.ScanId)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, fmt.Sprintf("%d.%s", page.SequenceId, page.Extension())))
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := page.Reader.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.Copy(f, page.Reader); err != nil {
		return err
	}
	if _, err := page.Reader.Seek(0, io.SeekStart); err != nil {
		return err
	}
	log.Debugf("Created file %s", f.Name())
	return nil
}

func (fs *Fs) documentPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: bad file name %q", ErrInvalidPath, name)
	}
	return filepath.Join(fs.dir, name), nil
}

// StoreDocument writes the document to <dir>/<name>, replacing any
// previous file of that name.
func (fs *Fs) StoreDocument(doc models.Document) (string, error) {
	p, err := fs.documentPath(doc.Name)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(fs.dir, "."+doc.Name+".*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := doc.Reader.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return "", err
	}
	if _, err := io.Copy(tmp, doc.Reader); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return "", err
	}
	log.Debugf("Created file %s", p)
	return p, nil
}

func (fs *Fs) RetrieveDocument(name string) (*models.Document, error) {
	p, err := fs.documentPath(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &models.Document{
		Name:      name,
		Reader:    f,
		CreatedAt: st.ModTime(),
	}, nil
}
