package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"unichat/internal/logging"
	"unichat/internal/types"
)

const (
	dataPrefix = "data: "
	doneMarker = "[DONE]"
	readSize   = 4096
	// maxEmptyReads bounds consecutive reads that return no data and no error.
	maxEmptyReads = 100
)

// Record is one decoded `data:` line of a completion stream.
type Record struct {
	Raw   string
	Chunk types.CompletionChunk
}

// Parser splits raw transport chunks into records. Bytes after the last
// newline are held until the next Feed, so a record is never decoded from a
// partial line.
type Parser struct {
	pending []byte
	done    bool
	logger  logging.Logger
}

func NewParser(logger logging.Logger) *Parser {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Parser{logger: logger}
}

// Feed consumes one chunk and returns the records completed by it, in
// arrival order. Nothing is returned once the done marker has been seen.
func (p *Parser) Feed(chunk []byte) []Record {
	if p.done {
		return nil
	}
	p.pending = append(p.pending, chunk...)
	var out []Record
	for !p.done {
		idx := bytes.IndexByte(p.pending, '\n')
		if idx < 0 {
			break
		}
		line := p.pending[:idx]
		if rec, ok := p.parseLine(line); ok {
			out = append(out, rec)
		}
		p.pending = p.pending[idx+1:]
	}
	if p.done {
		p.pending = nil
	}
	if len(p.pending) == 0 {
		p.pending = nil
	}
	return out
}

// Flush treats buffered bytes as a final line. Call it when the transport
// reports EOF.
func (p *Parser) Flush() []Record {
	if p.done || len(p.pending) == 0 {
		p.pending = nil
		return nil
	}
	line := p.pending
	p.pending = nil
	if rec, ok := p.parseLine(line); ok {
		return []Record{rec}
	}
	return nil
}

// Done reports whether the done marker has been seen.
func (p *Parser) Done() bool {
	return p.done
}

func (p *Parser) parseLine(line []byte) (Record, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return Record{}, false
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return Record{}, false
	}
	if string(payload) == doneMarker {
		p.done = true
		return Record{}, false
	}
	var chunk types.CompletionChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		p.logger.Debug("stream_record_malformed", logging.F("payload", string(payload)), logging.Err(err))
		return Record{}, false
	}
	return Record{Raw: string(payload), Chunk: chunk}, true
}

// Decoder pulls records lazily from a reader.
type Decoder struct {
	r      io.Reader
	parser *Parser
	queue  []Record
	buf    []byte
	eof    bool
	empty  int
}

func NewDecoder(r io.Reader, logger logging.Logger) *Decoder {
	return &Decoder{
		r:      r,
		parser: NewParser(logger),
		buf:    make([]byte, readSize),
	}
}

// Next returns the next record. It returns io.EOF after the done marker or
// the end of the reader, io.ErrNoProgress when the reader keeps returning
// nothing, and any other read error as is.
func (d *Decoder) Next() (Record, error) {
	for len(d.queue) == 0 {
		if d.eof || d.parser.Done() {
			return Record{}, io.EOF
		}
		n, err := d.r.Read(d.buf)
		if n > 0 {
			d.empty = 0
			d.queue = append(d.queue, d.parser.Feed(d.buf[:n])...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return Record{}, err
			}
			d.eof = true
			d.queue = append(d.queue, d.parser.Flush()...)
			continue
		}
		if n == 0 {
			d.empty++
			if d.empty >= maxEmptyReads {
				return Record{}, io.ErrNoProgress
			}
		}
	}
	rec := d.queue[0]
	d.queue = d.queue[1:]
	return rec, nil
}

// Done reports whether the stream ended with the done marker rather than a
// bare EOF.
func (d *Decoder) Done() bool {
	return d.parser.Done()
}
