package hst

// MetaTrader 4 history files, format version 509.

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"golang.org/x/text/encoding/charmap"

	"session-backtest/services/engine"
)

const (
	Version    = 509
	HeaderSize = 148
	RecordSize = 60

	copyrightLen = 64
	symbolLen    = 12
	reservedLen  = 52
)

// Header is the decoded file header.
type Header struct {
	Copyright string
	Symbol    string
	Period    int32 // minutes
	Digits    int32
	Created   time.Time
	LastSync  time.Time
}

// fixedHeader mirrors the on-disk layout.
type fixedHeader struct {
	Version   int32
	Copyright [copyrightLen]byte
	Symbol    [symbolLen]byte
	Period    int32
	Digits    int32
	Created   int32
	LastSync  int32
	Reserved  [reservedLen]byte
}

type fixedRecord struct {
	Time     int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
	Spread   int32
	Reserved int64
}

// fill copies s into dst, truncated to len(dst)-1 so the field stays NUL terminated.
func fill(dst []byte, s []byte) {
	n := copy(dst[:len(dst)-1], s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func encodeSymbol(s string) []byte {
	b, err := charmap.Windows1252.NewEncoder().Bytes([]byte(s))
	if err != nil {
		out := make([]byte, 0, len(s))
		for _, r := range s {
			if enc, ok := charmap.Windows1252.EncodeRune(r); ok {
				out = append(out, enc)
			} else {
				out = append(out, '?')
			}
		}
		return out
	}
	return b
}

func asciiOnly(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r < 0x80 {
			out = append(out, byte(r))
		} else {
			out = append(out, '?')
		}
	}
	return out
}

// Writer streams bars into an HST file.
type Writer struct {
	w      *bufio.Writer
	spread int32
	n      int
}

// NewWriter writes the header immediately. spread is stamped on every record.
func NewWriter(w io.Writer, h Header, spread int32) (*Writer, error) {
	fh := fixedHeader{
		Version:  Version,
		Period:   h.Period,
		Digits:   h.Digits,
		Created:  int32(h.Created.Unix()),
		LastSync: unixOrZero(h.LastSync),
	}
	fill(fh.Copyright[:], asciiOnly(h.Copyright))
	fill(fh.Symbol[:], encodeSymbol(h.Symbol))
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &fh); err != nil {
		return nil, fmt.Errorf("write hst header: %w", err)
	}
	return &Writer{w: bw, spread: spread}, nil
}

func unixOrZero(t time.Time) int32 {
	if t.IsZero() {
		return 0
	}
	return int32(t.Unix())
}

// Write appends one record.
func (w *Writer) Write(b engine.Bar) error {
	rec := fixedRecord{
		Time:   b.Time.Unix(),
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
		Spread: w.spread,
	}
	if err := binary.Write(w.w, binary.LittleEndian, &rec); err != nil {
		return fmt.Errorf("write hst record %d: %w", w.n, err)
	}
	w.n++
	return nil
}

func (w *Writer) Count() int { return w.n }

// Flush writes buffered records to the underlying writer.
func (w *Writer) Flush() error { return w.w.Flush() }

// Record is a decoded bar row.
type Record struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
	Spread int32
}

// Read decodes a whole file; used to verify exports.
func Read(r io.Reader) (Header, []Record, error) {
	var fh fixedHeader
	if err := binary.Read(r, binary.LittleEndian, &fh); err != nil {
		return Header{}, nil, fmt.Errorf("read hst header: %w", err)
	}
	if fh.Version != Version {
		return Header{}, nil, fmt.Errorf("unsupported hst version %d", fh.Version)
	}
	sym, _ := charmap.Windows1252.NewDecoder().Bytes(trimNUL(fh.Symbol[:]))
	h := Header{
		Copyright: string(trimNUL(fh.Copyright[:])),
		Symbol:    string(sym),
		Period:    fh.Period,
		Digits:    fh.Digits,
		Created:   time.Unix(int64(fh.Created), 0).UTC(),
	}
	if fh.LastSync != 0 {
		h.LastSync = time.Unix(int64(fh.LastSync), 0).UTC()
	}
	var recs []Record
	for {
		var fr fixedRecord
		err := binary.Read(r, binary.LittleEndian, &fr)
		if err == io.EOF {
			break
		}
		if err != nil {
			return h, recs, fmt.Errorf("read hst record %d: %w", len(recs), err)
		}
		if math.IsNaN(fr.Open) {
			return h, recs, fmt.Errorf("record %d: NaN open", len(recs))
		}
		recs = append(recs, Record{
			Time: time.Unix(fr.Time, 0).UTC(), Open: fr.Open, High: fr.High, Low: fr.Low,
			Close: fr.Close, Volume: fr.Volume, Spread: fr.Spread,
		})
	}
	return h, recs, nil
}

func trimNUL(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}
