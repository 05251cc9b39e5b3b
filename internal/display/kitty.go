package display

import (
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
)

const (
	escapeStart = "\x1b_G"
	escapeEnd   = "\x1b\\"
	chunkSize   = 4096
)

// KittyEncoder writes PNG data using the kitty graphics protocol, splitting
// payloads larger than chunkSize into continuation chunks.
type KittyEncoder struct {
	out     io.Writer
	columns int
}

func NewKittyEncoder(out io.Writer) *KittyEncoder {
	return &KittyEncoder{out: out}
}

// WithColumns limits the displayed width to n terminal cells.
func (e *KittyEncoder) WithColumns(n int) *KittyEncoder {
	e.columns = n
	return e
}

func (e *KittyEncoder) Encode(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	chunks := splitIntoChunks(encoded, chunkSize)

	for i, chunk := range chunks {
		params := e.controlData(i, len(chunks))
		if _, err := fmt.Fprintf(e.out, "%s%s;%s%s", escapeStart, params, chunk, escapeEnd); err != nil {
			return err
		}
	}
	return nil
}

// controlData returns the key=value header for chunk i of n. Only the first
// chunk carries the transmission keys.
func (e *KittyEncoder) controlData(i, n int) string {
	if i > 0 {
		if i == n-1 {
			return "m=0"
		}
		return "m=1"
	}

	params := "a=T,f=100,q=2"
	if e.columns > 0 {
		params += ",c=" + strconv.Itoa(e.columns)
	}
	if n > 1 {
		params += ",m=1"
	}
	return params
}

func splitIntoChunks(s string, size int) []string {
	var chunks []string
	for len(s) > 0 {
		n := min(size, len(s))
		chunks = append(chunks, s[:n])
		s = s[n:]
	}
	return chunks
}
