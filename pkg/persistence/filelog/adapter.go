// Package filelog adapts the teacher's segment/flush disk machinery
// (pkg/disk) to a much smaller append-only write-ahead log: instead of
// batched message-log segments, it durably records committed consumer
// offsets and sideline-request metadata, replaying the log on Open to
// rebuild its in-memory view.
package filelog

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/downfa11-org/sideline-consumer/pkg/persistence"
	"github.com/downfa11-org/sideline-consumer/pkg/types"
)

type recordKind uint8

const (
	kindOffsetPut recordKind = iota + 1
	kindOffsetClear
	kindSidelinePut
	kindSidelineClear
	kindRemoveConsumerState
)

type partitionKey struct {
	consumerID string
	partition  int32
}

// Adapter is a persistence.Adapter backed by a single append-only log
// file. Unlike pkg/disk's DiskHandler, writes are not batched through a
// channel: every Persist/Clear call fsyncs before returning, because a
// caller that observes PersistConsumerOffset succeed must be able to
// rely on that offset surviving a crash (spec §4.3, §7 PersistenceFailure).
type Adapter struct {
	path string

	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	offsets  map[partitionKey]int64
	sideline map[string]types.SidelineRequest
}

// New returns an Adapter that will read from and append to path. Open
// must still be called before use.
func New(path string) *Adapter {
	return &Adapter{path: path}
}

func (a *Adapter) Open(config map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("filelog: mkdir: %w", err)
	}

	a.offsets = make(map[partitionKey]int64)
	a.sideline = make(map[string]types.SidelineRequest)

	if err := a.replay(); err != nil {
		return fmt.Errorf("filelog: replay: %w", err)
	}

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("filelog: open: %w", err)
	}
	adviseSequential(f)
	a.file = f
	a.writer = bufio.NewWriter(f)
	return nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	if err := a.writer.Flush(); err != nil {
		return err
	}
	err := a.file.Close()
	a.file = nil
	a.writer = nil
	return err
}

// replay reconstructs a.offsets and a.sideline from the existing log,
// applying records in the order they were written. Missing file is not
// an error: it means a fresh store.
func (a *Adapter) replay() error {
	f, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		kind, payload, err := readRecord(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := a.apply(kind, payload); err != nil {
			return err
		}
	}
}

func (a *Adapter) apply(kind recordKind, payload []byte) error {
	buf := newDecoder(payload)
	switch kind {
	case kindOffsetPut:
		consumerID := buf.readString()
		partition := buf.readInt32()
		offset := buf.readInt64()
		a.offsets[partitionKey{consumerID, partition}] = offset
	case kindOffsetClear:
		consumerID := buf.readString()
		partition := buf.readInt32()
		delete(a.offsets, partitionKey{consumerID, partition})
	case kindRemoveConsumerState:
		consumerID := buf.readString()
		for k := range a.offsets {
			if k.consumerID == consumerID {
				delete(a.offsets, k)
			}
		}
	case kindSidelinePut:
		req, err := decodeSidelineRequest(buf)
		if err != nil {
			return err
		}
		a.sideline[req.ID] = req
	case kindSidelineClear:
		id := buf.readString()
		delete(a.sideline, id)
	default:
		return fmt.Errorf("filelog: unknown record kind %d", kind)
	}
	return buf.err
}

func (a *Adapter) appendRecord(kind recordKind, payload []byte) error {
	if err := writeRecord(a.writer, kind, payload); err != nil {
		return fmt.Errorf("filelog: write: %w", err)
	}
	if err := a.writer.Flush(); err != nil {
		return fmt.Errorf("filelog: flush: %w", err)
	}
	if err := a.file.Sync(); err != nil {
		return fmt.Errorf("filelog: fsync: %w", err)
	}
	return nil
}

func (a *Adapter) PersistConsumerOffset(consumerID string, partition int32, offset int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	enc := newEncoder()
	enc.writeString(consumerID)
	enc.writeInt32(partition)
	enc.writeInt64(offset)
	if err := a.appendRecord(kindOffsetPut, enc.bytes()); err != nil {
		return err
	}
	a.offsets[partitionKey{consumerID, partition}] = offset
	return nil
}

func (a *Adapter) RetrieveConsumerOffset(consumerID string, partition int32) (int64, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.offsets[partitionKey{consumerID, partition}]
	return v, ok, nil
}

func (a *Adapter) ClearConsumerOffset(consumerID string, partition int32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	enc := newEncoder()
	enc.writeString(consumerID)
	enc.writeInt32(partition)
	if err := a.appendRecord(kindOffsetClear, enc.bytes()); err != nil {
		return err
	}
	delete(a.offsets, partitionKey{consumerID, partition})
	return nil
}

func (a *Adapter) RemoveConsumerState(consumerID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	enc := newEncoder()
	enc.writeString(consumerID)
	if err := a.appendRecord(kindRemoveConsumerState, enc.bytes()); err != nil {
		return err
	}
	for k := range a.offsets {
		if k.consumerID == consumerID {
			delete(a.offsets, k)
		}
	}
	return nil
}

func (a *Adapter) PersistSidelineRequest(req types.SidelineRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	enc, err := encodeSidelineRequest(req)
	if err != nil {
		return fmt.Errorf("filelog: encode sideline request: %w", err)
	}
	if err := a.appendRecord(kindSidelinePut, enc.bytes()); err != nil {
		return err
	}
	a.sideline[req.ID] = req
	return nil
}

func (a *Adapter) RetrieveSidelineRequest(id string) (types.SidelineRequest, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.sideline[id]
	return v, ok, nil
}

func (a *Adapter) ClearSidelineRequest(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	enc := newEncoder()
	enc.writeString(id)
	if err := a.appendRecord(kindSidelineClear, enc.bytes()); err != nil {
		return err
	}
	delete(a.sideline, id)
	return nil
}

func (a *Adapter) ListSidelineRequests() ([]types.SidelineRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.SidelineRequest, 0, len(a.sideline))
	for _, v := range a.sideline {
		out = append(out, v)
	}
	return out, nil
}

var _ persistence.Adapter = (*Adapter)(nil)

// --- wire format ---
//
// Each record is [4-byte big-endian length][1-byte kind][payload],
// mirroring the length-prefixed framing pkg/disk uses for its message
// segments.

func writeRecord(w io.Writer, kind recordKind, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)+1))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(kind)}); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readRecord(r io.Reader) (recordKind, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return 0, nil, fmt.Errorf("filelog: empty record")
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}
	return recordKind(body[0]), body[1:], nil
}

func encodeSidelineRequest(req types.SidelineRequest) (*encoder, error) {
	enc := newEncoder()
	enc.writeString(req.ID)
	enc.writeString(string(req.Type))

	compressed, err := compressBlob(req.RequestBody)
	if err != nil {
		return nil, err
	}
	enc.writeBytes(compressed)
	enc.writePartitionMap(req.StartingState)
	enc.writePartitionMap(req.EndingState)
	return enc, nil
}

func decodeSidelineRequest(buf *decoder) (types.SidelineRequest, error) {
	req := types.SidelineRequest{
		ID:   buf.readString(),
		Type: types.RequestType(buf.readString()),
	}
	compressed := buf.readBytes()
	body, err := decompressBlob(compressed)
	if err != nil {
		return req, err
	}
	req.RequestBody = body
	req.StartingState = buf.readPartitionMap()
	req.EndingState = buf.readPartitionMap()
	return req, buf.err
}

// compressBlob lz4-compresses a sideline request's opaque body before it
// hits the WAL; these bodies are arbitrary caller-supplied filter
// payloads and may be large relative to an offset record.
func compressBlob(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressBlob(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	r := lz4.NewReader(bytes.NewReader(blob))
	return io.ReadAll(r)
}
