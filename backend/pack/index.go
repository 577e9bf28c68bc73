package pack

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/embervcs/odb/dberr"
	"github.com/embervcs/odb/oid"
)

var indexMagicV2 = [4]byte{0xff, 't', 'O', 'c'}

const (
	fanoutEntries  = 256
	fanoutSize     = fanoutEntries * 4
	v1EntrySize    = 4 + oid.Size // offset, then oid
	v2CRCSize      = 4
	v2OffsetSize   = 4
	v2BigOffSize   = 8
	v2OffsetMSB    = uint32(1) << 31
	v2OffsetMask   = v2OffsetMSB - 1
)

// Index is a parsed pack index (.idx) sidecar: a sorted table of every
// object ID in the pack, and the byte offset of that object's entry
// within the pack.
type Index struct {
	version int
	fanout  [fanoutEntries]uint32 // cumulative counts
	ids     []oid.ID              // sorted ascending
	offsets []uint64              // offsets[i] corresponds to ids[i]
	packSum oid.ID
}

// ParseIndex parses a full .idx file already read into memory.
func ParseIndex(data []byte) (*Index, error) {
	const op = "pack.ParseIndex"
	if len(data) < 4 {
		return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("index too short"))
	}
	if bytes.Equal(data[:4], indexMagicV2[:]) {
		return parseIndexV2(data, op)
	}
	return parseIndexV1(data, op)
}

func parseIndexV1(data []byte, op string) (*Index, error) {
	idx := &Index{version: 1}
	if len(data) < fanoutSize {
		return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("v1 index truncated fan-out"))
	}
	readFanout(&idx.fanout, data)
	n := int(idx.fanout[fanoutEntries-1])

	body := data[fanoutSize:]
	need := n*v1EntrySize + 2*oid.Size
	if len(body) < need {
		return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("v1 index truncated body"))
	}
	idx.ids = make([]oid.ID, n)
	idx.offsets = make([]uint64, n)
	for i := 0; i < n; i++ {
		e := body[i*v1EntrySize:]
		idx.offsets[i] = uint64(binary.BigEndian.Uint32(e[:4]))
		copy(idx.ids[i][:], e[4:4+oid.Size])
	}
	trailer := body[n*v1EntrySize:]
	copy(idx.packSum[:], trailer[:oid.Size])
	if err := idx.checkSorted(); err != nil {
		return nil, dberr.New(dberr.Corruption, op, err)
	}
	return idx, nil
}

func parseIndexV2(data []byte, op string) (*Index, error) {
	idx := &Index{version: 2}
	// magic(4) + version(4) + fanout(1024)
	if len(data) < 8+fanoutSize {
		return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("v2 index truncated fan-out"))
	}
	ver := binary.BigEndian.Uint32(data[4:8])
	if ver != 2 {
		return nil, dberr.New(dberr.Unsupported, op, fmt.Errorf("unsupported index version %d", ver))
	}
	off := 8
	readFanout(&idx.fanout, data[off:])
	off += fanoutSize
	n := int(idx.fanout[fanoutEntries-1])

	idsStart := off
	idsSize := n * oid.Size
	crcStart := idsStart + idsSize
	crcSize := n * v2CRCSize
	ofsStart := crcStart + crcSize
	ofsSize := n * v2OffsetSize
	bigOfsStart := ofsStart + ofsSize

	if len(data) < bigOfsStart {
		return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("v2 index truncated oid/crc/offset tables"))
	}
	idx.ids = make([]oid.ID, n)
	for i := 0; i < n; i++ {
		copy(idx.ids[i][:], data[idsStart+i*oid.Size:])
	}
	// CRC table (layer3) is skipped, neither read nor retained: the
	// core verifies object digests directly on read, which subsumes
	// the CRC's purpose.

	idx.offsets = make([]uint64, n)
	type bigRef struct{ i int; rel uint32 }
	var bigRefs []bigRef
	for i := 0; i < n; i++ {
		entry := binary.BigEndian.Uint32(data[ofsStart+i*v2OffsetSize:])
		if entry&v2OffsetMSB != 0 {
			bigRefs = append(bigRefs, bigRef{i, entry & v2OffsetMask})
		} else {
			idx.offsets[i] = uint64(entry)
		}
	}
	if len(bigRefs) > 0 {
		sort.Slice(bigRefs, func(a, b int) bool { return bigRefs[a].rel < bigRefs[b].rel })
		need := bigOfsStart + len(bigRefs)*v2BigOffSize
		if len(data) < need {
			return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("v2 index truncated 64-bit offset table"))
		}
		for j, r := range bigRefs {
			got := data[bigOfsStart+j*v2BigOffSize:]
			idx.offsets[r.i] = binary.BigEndian.Uint64(got)
		}
	}

	trailerStart := bigOfsStart + len(bigRefs)*v2BigOffSize
	if len(data) < trailerStart+2*oid.Size {
		return nil, dberr.New(dberr.Corruption, op, fmt.Errorf("v2 index truncated trailer"))
	}
	copy(idx.packSum[:], data[trailerStart:trailerStart+oid.Size])

	if err := idx.checkSorted(); err != nil {
		return nil, dberr.New(dberr.Corruption, op, err)
	}
	return idx, nil
}

func readFanout(fanout *[fanoutEntries]uint32, data []byte) {
	for i := 0; i < fanoutEntries; i++ {
		fanout[i] = binary.BigEndian.Uint32(data[i*4:])
	}
}

func (idx *Index) checkSorted() error {
	for i := 1; i < len(idx.ids); i++ {
		if idx.ids[i-1].Compare(idx.ids[i]) >= 0 {
			return fmt.Errorf("index oid table not strictly ascending at entry %d", i)
		}
	}
	return nil
}

// Find returns the pack offset of id using the fan-out table to bound
// a binary search over the sorted oid table, or ok=false if id is not
// present in this index.
func (idx *Index) Find(id oid.ID) (offset uint64, ok bool) {
	lo := 0
	if id[0] > 0 {
		lo = int(idx.fanout[id[0]-1])
	}
	hi := int(idx.fanout[id[0]])
	i := sort.Search(hi-lo, func(k int) bool {
		return idx.ids[lo+k].Compare(id) >= 0
	}) + lo
	if i >= hi || idx.ids[i] != id {
		return 0, false
	}
	return idx.offsets[i], true
}

// Len reports the number of objects indexed.
func (idx *Index) Len() int { return len(idx.ids) }

// PackSum returns the pack checksum recorded in the index trailer.
func (idx *Index) PackSum() oid.ID { return idx.packSum }
