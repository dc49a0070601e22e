package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	ExtZstd = ".snap.zst"
	ExtLZ4  = ".snap.lz4"
)

// Path is where periodic snapshots of a game are written.
func Path(dataDir, game string, turn int64, ext string) string {
	return filepath.Join(dataDir, "snapshots", game, fmt.Sprintf("%012d%s", turn, ext))
}

// Latest returns the highest-turn snapshot of a game under dataDir, or ""
// when there is none.
func Latest(dataDir, game string) string {
	dir := filepath.Join(dataDir, "snapshots", game)
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTurn int64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		var base string
		switch {
		case strings.HasSuffix(name, ExtZstd):
			base = strings.TrimSuffix(name, ExtZstd)
		case strings.HasSuffix(name, ExtLZ4):
			base = strings.TrimSuffix(name, ExtLZ4)
		default:
			continue
		}
		turn, err := strconv.ParseInt(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || turn > bestTurn {
			bestTurn = turn
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func WriteSnapshot(path string, snap GameSnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	var frame io.WriteCloser
	if strings.HasSuffix(path, ExtLZ4) {
		frame = lz4.NewWriter(f)
	} else {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return err
		}
		frame = enc
	}

	bw := bufio.NewWriterSize(frame, 256*1024)
	hb, err := json.Marshal(snap.Header)
	if err != nil {
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	enc := msgpack.NewEncoder(bw)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(&snap); err != nil {
		return fmt.Errorf("msgpack encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := frame.Close(); err != nil {
		return err
	}
	return f.Close()
}

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error { z.Decoder.Close(); return nil }

func open(path string) (*bufio.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	var frame io.ReadCloser
	if strings.HasSuffix(path, ExtLZ4) {
		frame = io.NopCloser(lz4.NewReader(f))
	} else {
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, nil, err
		}
		frame = zstdReadCloser{dec}
	}
	closeAll := func() {
		_ = frame.Close()
		_ = f.Close()
	}
	return bufio.NewReaderSize(frame, 256*1024), closeAll, nil
}

func readHeader(br *bufio.Reader) (Header, error) {
	var h Header
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	return h, nil
}

// ReadHeader reads only the header line.
func ReadHeader(path string) (Header, error) {
	br, closeAll, err := open(path)
	if err != nil {
		return Header{}, err
	}
	defer closeAll()
	return readHeader(br)
}

func ReadSnapshot(path string) (GameSnapshotV1, error) {
	var snap GameSnapshotV1
	br, closeAll, err := open(path)
	if err != nil {
		return snap, err
	}
	defer closeAll()
	h, err := readHeader(br)
	if err != nil {
		return snap, err
	}
	if h.Version != Version {
		return snap, fmt.Errorf("snapshot version %d not supported", h.Version)
	}
	dec := msgpack.NewDecoder(br)
	dec.SetCustomStructTag("json")
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(&snap); err != nil {
		return snap, fmt.Errorf("msgpack decode: %w", err)
	}
	return snap, nil
}
