package engine

import (
	"github.com/marmos91/cellfs/pkg/cell"
)

// Bodies are split into 32-byte clusters indexed from 0. Byte i of a body
// lives in cluster i/32 at position i%32, first byte first.

// clusterSpan returns the first and last cluster touched by n bytes at
// offset. n must be positive.
func clusterSpan(offset, n uint64) (first, last uint64) {
	return offset / cell.WordSize, (offset + n - 1) / cell.WordSize
}

// writeClusters overwrites body bytes [offset, offset+len(body)) of id.
// Bytes outside that range, including the rest of partially covered
// clusters, are preserved.
func writeClusters(tx cell.Store, s slots, id uint64, body []byte, offset uint64) error {
	if len(body) == 0 {
		return nil
	}

	first, last := clusterSpan(offset, uint64(len(body)))
	for c := first; c <= last; c++ {
		start := c * cell.WordSize
		addr := s.cluster(id, c)

		var w cell.Word
		// Fully covered clusters need no read.
		if start < offset || start+cell.WordSize > offset+uint64(len(body)) {
			var err error
			if w, err = tx.Load(addr); err != nil {
				return err
			}
		}

		lo := max(start, offset)
		hi := min(start+cell.WordSize, offset+uint64(len(body)))
		copy(w[lo-start:hi-start], body[lo-offset:hi-offset])

		if err := tx.Store(addr, w); err != nil {
			return err
		}
	}
	return nil
}

// readClusters returns body bytes of id starting at offset.
//
// Reads at or past size are empty. A zero length, or one reaching past size,
// is clamped to the remaining bytes.
func readClusters(tx cell.Store, s slots, id uint64, offset, length, size uint64) ([]byte, error) {
	if offset >= size {
		return []byte{}, nil
	}
	if length == 0 || length > size-offset {
		length = size - offset
	}

	out := make([]byte, 0, length)
	first, last := clusterSpan(offset, length)
	for c := first; c <= last; c++ {
		w, err := tx.Load(s.cluster(id, c))
		if err != nil {
			return nil, err
		}
		start := c * cell.WordSize
		lo := max(start, offset)
		hi := min(start+cell.WordSize, offset+length)
		out = append(out, w[lo-start:hi-start]...)
	}
	return out, nil
}

// readSingleCluster returns cluster index of id as stored. Clusters never
// written read as the zero word.
func readSingleCluster(tx cell.Store, s slots, id, index uint64) (cell.Word, error) {
	return tx.Load(s.cluster(id, index))
}

// clearTail zeroes body bytes [from, to) of id, leaving bytes before from
// intact. It keeps bytes past the declared size at zero after a truncation.
func clearTail(tx cell.Store, s slots, id uint64, from, to uint64) error {
	if from >= to {
		return nil
	}

	first, last := clusterSpan(from, to-from)
	for c := first; c <= last; c++ {
		start := c * cell.WordSize
		addr := s.cluster(id, c)

		var w cell.Word
		if from > start {
			var err error
			if w, err = tx.Load(addr); err != nil {
				return err
			}
			clear(w[from-start:])
		}
		if err := tx.Store(addr, w); err != nil {
			return err
		}
	}
	return nil
}
