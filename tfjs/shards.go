package tfjs

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
	"k8s.io/klog/v2"
)

// gzipMagic is the prefix of gzip compressed files.
var gzipMagic = []byte{0x1f, 0x8b}

// isGzipped returns whether contents starts with the gzip magic number.
func isGzipped(contents []byte) bool {
	return bytes.HasPrefix(contents, gzipMagic)
}

// gunzip decompresses a whole gzip compressed file.
func gunzip(r io.Reader) ([]byte, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open gzip stream")
	}
	defer zr.Close()
	contents, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress gzip stream")
	}
	return contents, nil
}

// ReadShards reads the weight shard files (paths are relative to baseDir) and returns them concatenated in order.
//
// Uncompressed shards are memory-mapped and copied straight into one buffer allocated with the total size, so
// there are no intermediate per-shard buffers.
// If compressed is true (the model.json was gzip compressed), every shard is gzip decompressed.
func ReadShards(baseDir string, paths []string, compressed bool) ([]byte, error) {
	if compressed {
		return readCompressedShards(baseDir, paths)
	}

	readers := make([]*mmap.ReaderAt, 0, len(paths))
	defer func() {
		for _, r := range readers {
			_ = r.Close()
		}
	}()
	total := 0
	for _, p := range paths {
		shardPath := filepath.Join(baseDir, p)
		r, err := mmap.Open(shardPath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to mmap weights shard %q", shardPath)
		}
		readers = append(readers, r)
		total += r.Len()
	}

	data := make([]byte, total)
	offset := 0
	for ii, r := range readers {
		if r.Len() == 0 {
			continue
		}
		n, err := r.ReadAt(data[offset:offset+r.Len()], 0)
		if err != nil && err != io.EOF {
			return nil, errors.Wrapf(err, "failed to read weights shard %q", paths[ii])
		}
		if n != r.Len() {
			return nil, errors.Errorf("read %d bytes but expected %d from weights shard %q", n, r.Len(), paths[ii])
		}
		offset += n
	}
	klog.V(1).Infof("read %d weight shards (%d bytes)", len(paths), total)
	return data, nil
}

func readCompressedShards(baseDir string, paths []string) ([]byte, error) {
	var data []byte
	for _, p := range paths {
		shardPath := filepath.Join(baseDir, p)
		f, err := os.Open(shardPath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open weights shard %q", shardPath)
		}
		shard, err := gunzip(f)
		_ = f.Close()
		if err != nil {
			return nil, errors.WithMessagef(err, "weights shard %q", shardPath)
		}
		if data == nil {
			data = shard
		} else {
			data = append(data, shard...)
		}
	}
	klog.V(1).Infof("read %d compressed weight shards (%d bytes uncompressed)", len(paths), len(data))
	return data, nil
}
