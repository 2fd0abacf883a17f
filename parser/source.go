package parser

import (
	"bufio"
	"io"
	"strings"
	"time"

	"github.com/activecm/rita-pdns/parser/files"
	pt "github.com/activecm/rita-pdns/parser/parsetypes"
	"github.com/activecm/rita-pdns/pkg/record"
	"github.com/activecm/rita-pdns/util"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

//Format selects how a log stream is decoded
type Format int

const (
	//FormatAuto picks TSV or JSON from the first byte of the stream
	FormatAuto Format = iota
	//FormatTSV reads Zeek ASCII logs
	FormatTSV
	//FormatJSON reads Zeek JSON logs, one object per line
	FormatJSON
)

//DefaultMaxValueLength bounds the length of queries and answers
const DefaultMaxValueLength = 1000

//ParseFormat converts a configured format name into a Format
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return FormatAuto, nil
	case "tsv", "ascii", "zeek":
		return FormatTSV, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatAuto, errors.Errorf("unknown log format %q", name)
}

func (f Format) String() string {
	switch f {
	case FormatTSV:
		return "tsv"
	case FormatJSON:
		return "json"
	}
	return "auto"
}

type (
	//Answer is one entry of a dns answer section with its TTL as logged
	Answer struct {
		Answer string
		TTL    string
	}

	//Observation is a single dns exchange read from a log
	Observation struct {
		Query     string
		QType     string
		Answers   []Answer
		Timestamp time.Time
	}

	//ObservationReader yields Observations until io.EOF
	ObservationReader interface {
		Next() (*Observation, error)
		// Counts returns the number of records read and skipped so far
		Counts() (total uint64, skipped uint64)
	}
)

//Source reads Observations from a Zeek dns log stream. It is lazy and can
//only be consumed once.
type Source struct {
	format      Format
	scanner     *bufio.Scanner
	header      *files.BroHeader
	fieldMap    files.ZeekHeaderIndexMap
	factory     func() pt.BroData
	pending     bool
	done        bool
	lineNumber  int
	maxValueLen int
	log         *log.Logger

	total   uint64
	skipped uint64
}

//NewSource prepares a Source over r. TSV headers are read immediately so a
//malformed header is reported before any record is produced.
func NewSource(r io.Reader, format Format, maxValueLen int, logger *log.Logger) (*Source, error) {
	if maxValueLen < 1 {
		maxValueLen = DefaultMaxValueLength
	}

	reader := bufio.NewReader(r)
	s := &Source{
		format:      format,
		scanner:     files.NewLogScanner(reader),
		factory:     pt.NewBroDataFactory("dns"),
		maxValueLen: maxValueLen,
		log:         logger,
	}

	if s.format == FormatAuto {
		first, err := reader.Peek(1)
		if err == io.EOF {
			s.done = true
			return s, nil
		}
		if err != nil {
			return nil, err
		}
		s.format = FormatTSV
		if first[0] == '{' {
			s.format = FormatJSON
		}
	}

	if s.format == FormatTSV {
		if err := s.readHeader(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Source) readHeader() error {
	header, hasData, err := files.ScanTSVHeader(s.scanner)
	if err != nil {
		return errors.Wrap(err, "invalid zeek header")
	}
	if header.ObjType != "" && pt.NewBroDataFactory(header.ObjType) == nil {
		return errors.Errorf("unsupported zeek log type %q", header.ObjType)
	}

	fieldMap, err := files.MapZeekHeaderToParseType(header, s.factory, s.log)
	if err != nil {
		return err
	}

	s.header = header
	s.fieldMap = fieldMap
	s.pending = hasData
	s.done = !hasData
	return nil
}

//Format returns the format the stream is decoded with
func (s *Source) Format() Format {
	return s.format
}

//Counts returns the number of records read and skipped so far
func (s *Source) Counts() (uint64, uint64) {
	return s.total, s.skipped
}

//Next returns the next Observation or io.EOF once the stream is exhausted
func (s *Source) Next() (*Observation, error) {
	for {
		line, ok, err := s.nextLine()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, io.EOF
		}

		var datum pt.BroData
		if s.format == FormatJSON {
			datum, err = files.ParseJSONLine([]byte(line), s.factory)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid JSON record on line %d", s.lineNumber)
			}
		} else {
			datum = files.ParseTSVLine(line, s.header, s.fieldMap, s.factory, s.log)
			if datum == nil {
				continue
			}
		}

		s.total++
		dns, ok := datum.(*pt.DNS)
		if !ok {
			s.skip("unexpected record type", line)
			continue
		}
		if dns.Path != "" && dns.Path != "dns" {
			s.skip("record from another log", line)
			continue
		}

		obs, reason := s.toObservation(dns)
		if obs == nil {
			s.skip(reason, line)
			continue
		}
		return obs, nil
	}
}

// nextLine returns the next data line of the stream
func (s *Source) nextLine() (string, bool, error) {
	for !s.done {
		var line string
		if s.pending {
			s.pending = false
			line = s.scanner.Text()
		} else if s.scanner.Scan() {
			line = s.scanner.Text()
		} else {
			s.done = true
			err := s.scanner.Err()
			if err == io.ErrUnexpectedEOF {
				s.log.WithFields(log.Fields{
					"line": s.lineNumber,
				}).Warn("Log stream ended unexpectedly, keeping records read so far")
				return "", false, nil
			}
			return "", false, err
		}
		s.lineNumber++

		if len(line) == 0 {
			continue
		}
		if s.format == FormatTSV && line[0] == '#' {
			if strings.HasPrefix(line, "#close") {
				s.done = true
			}
			continue
		}
		return line, true, nil
	}
	return "", false, nil
}

func (s *Source) skip(reason, line string) {
	s.skipped++
	s.log.WithFields(log.Fields{
		"reason": reason,
		"line":   s.lineNumber,
		"record": line,
	}).Debug("Skipping dns record")
}

// toObservation validates a decoded record. A nil Observation is returned
// with the reason the record was rejected.
func (s *Source) toObservation(dns *pt.DNS) (*Observation, string) {
	query := dns.QueryName()
	switch {
	case query == "":
		return nil, "missing query"
	case dns.QTypeName == "":
		return nil, "missing qtype_name"
	case dns.Answers == nil:
		return nil, "missing answers"
	case dns.TTLs == nil:
		return nil, "missing TTLs"
	case dns.TimeStamp.IsZero():
		return nil, "missing ts"
	case len(query) > s.maxValueLen:
		return nil, "query too long"
	case strings.ContainsRune(query, 0):
		return nil, "NUL byte in query"
	}

	count := util.Min(len(dns.Answers), len(dns.TTLs))

	obs := &Observation{
		Query:     query,
		QType:     dns.QTypeName,
		Answers:   make([]Answer, 0, count),
		Timestamp: dns.TimeStamp.Time,
	}
	for i := 0; i < count; i++ {
		answer := dns.Answers[i]
		if len(answer) > s.maxValueLen {
			return nil, "answer too long"
		}
		if answer == "" || answer == record.UnsetField {
			continue
		}
		obs.Answers = append(obs.Answers, Answer{Answer: answer, TTL: dns.TTLs[i]})
	}
	return obs, ""
}
