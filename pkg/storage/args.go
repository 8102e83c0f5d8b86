package storage

import (
	"fmt"
	"strings"

	"github.com/denysvitali/scan2pdf/pkg/storage/b2"
	"github.com/denysvitali/scan2pdf/pkg/storage/fs"
	"github.com/denysvitali/scan2pdf/pkg/storage/model"
)

const (
	TypeFs = "fs"
	TypeB2 = "b2"
)

// Storage is what a scan session needs from a backend
type Storage interface {
	model.RWStorage
	model.DocumentStorer
	model.DocumentRetriever
	model.Lister
}

// Setup returns the storage named by storageType, or nil for ""
func Setup(storageType string, fsPath string, b2Config b2.Config) (Storage, error) {
	switch strings.ToLower(storageType) {
	case "":
		return nil, nil
	case TypeFs:
		s, err := fs.NewOrCreate(fsPath)
		if err != nil {
			return nil, fmt.Errorf("unable to create fs storage: %w", err)
		}
		return s, nil
	case TypeB2:
		s, err := b2.New(b2Config)
		if err != nil {
			return nil, fmt.Errorf("unable to create b2 storage: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage type: %s", storageType)
}
