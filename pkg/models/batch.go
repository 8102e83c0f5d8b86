package models

import "time"

// Batch holds the pages of a single scan run, in page order.
type Batch struct {
	ScanId    string
	StartedAt time.Time
	Pages     []ScannedPage
}

func NewBatch(scanId string) *Batch {
	return &Batch{ScanId: scanId, StartedAt: time.Now()}
}

// Append adds the next page to the batch, numbering it after the last one.
func (b *Batch) Append(page ScannedPage) ScannedPage {
	page.ScanId = b.ScanId
	page.SequenceId = len(b.Pages) + 1
	b.Pages = append(b.Pages, page)
	return page
}

func (b *Batch) Len() int {
	return len(b.Pages)
}

// Release drops the references to the page data once the batch was consumed.
func (b *Batch) Release() {
	b.Pages = nil
}
