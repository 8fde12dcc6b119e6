package transport

import "bytes"

// LineDecoder accumulates arbitrary byte chunks and yields complete
// newline-delimited lines, retaining any partial trailing bytes until
// more data arrives. Per spec §4.4, whitespace-only lines are skipped
// by the caller (not here, so Feed itself never drops data).
type LineDecoder struct {
	buf []byte
}

// Feed appends chunk to the internal buffer and returns every complete
// line (without its trailing \n) found so far, in order. It is safe to
// call Feed repeatedly with arbitrary chunk boundaries: decode(encode(msgs))
// always reconstructs the original lines regardless of how the bytes were
// split across calls.
func (d *LineDecoder) Feed(chunk []byte) [][]byte {
	d.buf = append(d.buf, chunk...)

	var lines [][]byte
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := make([]byte, idx)
		copy(line, d.buf[:idx])
		lines = append(lines, line)
		d.buf = d.buf[idx+1:]
	}
	return lines
}

// Pending returns the bytes retained since the last complete line (the
// partial line currently being accumulated).
func (d *LineDecoder) Pending() []byte { return d.buf }

// EncodeLine appends exactly one trailing \n to msg, per the stdio
// framing contract.
func EncodeLine(msg []byte) []byte {
	out := make([]byte, len(msg)+1)
	copy(out, msg)
	out[len(msg)] = '\n'
	return out
}
