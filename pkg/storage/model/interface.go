package model

import "github.com/denysvitali/scan2pdf/pkg/models"

type Storer interface {
	Store(models.ScannedPage) error
}

type Retriever interface {
	Retrieve(scanId string, sequenceNumber int) (*models.ScannedPage, error)
}

// Lister lists the pages stored for a scan, ordered by sequence number
type Lister interface {
	ListFiles(scanId string) ([]models.ScannedPage, error)
}

type RWStorage interface {
	Storer
	Retriever
}

// DocumentStorer saves a finished PDF and returns where it ended up
type DocumentStorer interface {
	StoreDocument(models.Document) (string, error)
}

type DocumentRetriever interface {
	RetrieveDocument(name string) (*models.Document, error)
}
