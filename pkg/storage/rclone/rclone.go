// Package rclone describes in-memory uploads as rclone objects, so that
// scans can be handed to any rclone backend without touching the disk.
package rclone

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"time"

	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/hash"
)

// BufferObject is the rclone view of a buffer about to be uploaded. It
// carries the SHA-1 of the data so backends like B2 can verify the upload.
type BufferObject struct {
	remote  string
	modTime time.Time
	bucket  string
	size    int64
	sha1    string
}

var _ fs.ObjectInfo = (*BufferObject)(nil)

func NewBufferObject(bucket string, remote string, modTime time.Time, data []byte) BufferObject {
	if modTime.IsZero() {
		modTime = time.Now()
	}
	sum := sha1.Sum(data)
	return BufferObject{
		remote:  remote,
		modTime: modTime,
		bucket:  bucket,
		size:    int64(len(data)),
		sha1:    hex.EncodeToString(sum[:]),
	}
}

func (o BufferObject) String() string {
	return o.remote
}

func (o BufferObject) Remote() string {
	return o.remote
}

func (o BufferObject) ModTime(ctx context.Context) time.Time {
	return o.modTime
}

func (o BufferObject) Size() int64 {
	return o.size
}

func (o BufferObject) Fs() fs.Info {
	return memoryFs{bucket: o.bucket}
}

func (o BufferObject) Hash(ctx context.Context, ty hash.Type) (string, error) {
	if ty == hash.SHA1 {
		return o.sha1, nil
	}
	return "", hash.ErrUnsupported
}

func (o BufferObject) Storable() bool {
	return true
}

// memoryFs is the fs.Info every BufferObject reports as its origin
type memoryFs struct {
	bucket string
}

var _ fs.Info = (*memoryFs)(nil)

func (m memoryFs) Name() string {
	return "scan2pdf"
}

func (m memoryFs) Root() string {
	return m.bucket + "/"
}

func (m memoryFs) String() string {
	return "scan2pdf:" + m.bucket
}

func (m memoryFs) Precision() time.Duration {
	return time.Second
}

func (m memoryFs) Hashes() hash.Set {
	return hash.NewHashSet(hash.SHA1)
}

func (m memoryFs) Features() *fs.Features {
	return &fs.Features{}
}
