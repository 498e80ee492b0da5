package filelog

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/downfa11-org/sideline-consumer/pkg/types"
)

// encoder/decoder are a minimal length-prefixed binary codec for the
// handful of field shapes the WAL records need: strings, a single
// byte, byte slices, and the partition->offset maps a sideline request
// carries. Kept deliberately small rather than reaching for a general
// serializer, since the record set is fixed and never evolves at
// runtime.

type encoder struct {
	buf []byte
}

func newEncoder() *encoder { return &encoder{} }

func (e *encoder) bytes() []byte { return e.buf }

func (e *encoder) writeByte(b byte) { e.buf = append(e.buf, b) }

func (e *encoder) writeInt32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) writeBytes(v []byte) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(len(v)))
	e.buf = append(e.buf, b[:]...)
	e.buf = append(e.buf, v...)
}

func (e *encoder) writeString(v string) { e.writeBytes([]byte(v)) }

func (e *encoder) writePartitionMap(m map[types.PartitionKey]int64) {
	keys := make([]types.PartitionKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Topic != keys[j].Topic {
			return keys[i].Topic < keys[j].Topic
		}
		return keys[i].Partition < keys[j].Partition
	})

	e.writeInt32(int32(len(keys)))
	for _, k := range keys {
		e.writeString(k.Topic)
		e.writeInt32(k.Partition)
		e.writeInt64(m[k])
	}
}

type decoder struct {
	buf []byte
	off int
	err error
}

func newDecoder(buf []byte) *decoder { return &decoder{buf: buf} }

func (d *decoder) need(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.off+n > len(d.buf) {
		d.err = fmt.Errorf("filelog: short record: need %d bytes, have %d", n, len(d.buf)-d.off)
		return nil
	}
	out := d.buf[d.off : d.off+n]
	d.off += n
	return out
}

func (d *decoder) readByte() byte {
	b := d.need(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) readInt32() int32 {
	b := d.need(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (d *decoder) readInt64() int64 {
	b := d.need(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (d *decoder) readBytes() []byte {
	n := d.readInt32()
	if n == 0 || d.err != nil {
		return nil
	}
	b := d.need(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (d *decoder) readString() string {
	b := d.readBytes()
	return string(b)
}

func (d *decoder) readPartitionMap() map[types.PartitionKey]int64 {
	n := d.readInt32()
	if d.err != nil {
		return nil
	}
	m := make(map[types.PartitionKey]int64, n)
	for i := int32(0); i < n; i++ {
		topic := d.readString()
		partition := d.readInt32()
		offset := d.readInt64()
		if d.err != nil {
			return nil
		}
		m[types.PartitionKey{Topic: topic, Partition: partition}] = offset
	}
	return m
}
