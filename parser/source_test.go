package parser

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/activecm/rita-pdns/parser/files"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tsvHeader = "#separator \\x09\n" +
	"#set_separator\t,\n" +
	"#empty_field\t(empty)\n" +
	"#unset_field\t-\n" +
	"#path\tdns\n" +
	"#open\t2016-04-01-00-00-00\n" +
	"#fields\tts\tuid\tquery\tqtype_name\tanswers\tTTLs\n" +
	"#types\ttime\tstring\tstring\tstring\tvector[string]\tvector[interval]\n"

func testLogger() *log.Logger {
	logger := log.New()
	logger.Out = io.Discard
	return logger
}

func readAll(t *testing.T, src *Source) []*Observation {
	var all []*Observation
	for {
		obs, err := src.Next()
		if err == io.EOF {
			return all
		}
		require.Nil(t, err)
		all = append(all, obs)
	}
}

func TestParseFormat(t *testing.T) {
	for name, want := range map[string]Format{"": FormatAuto, "auto": FormatAuto, "TSV": FormatTSV, "json": FormatJSON} {
		got, err := ParseFormat(name)
		require.Nil(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.NotNil(t, err)
}

func TestSourceTSV(t *testing.T) {
	input := tsvHeader +
		"1459468983.743478\tC1\twww.example.com\tCNAME\texample.com,1.2.3.4\t60.000000,300.000000\n" +
		"1459468984.000000\tC2\texample.org\tA\t-\t-\n" +
		"#close\t2016-04-01-01-00-00\n" +
		"1459468985.000000\tC3\tafter.close\tA\t9.9.9.9\t1.0\n"

	src, err := NewSource(strings.NewReader(input), FormatAuto, 0, testLogger())
	require.Nil(t, err)
	assert.Equal(t, FormatTSV, src.Format())

	all := readAll(t, src)
	require.Len(t, all, 1)
	assert.Equal(t, "www.example.com", all[0].Query)
	assert.Equal(t, "CNAME", all[0].QType)
	assert.Equal(t, []Answer{{"example.com", "60.000000"}, {"1.2.3.4", "300.000000"}}, all[0].Answers)
	assert.True(t, time.Unix(1459468983, 743478000).Equal(all[0].Timestamp))

	total, skipped := src.Counts()
	assert.Equal(t, uint64(2), total)
	assert.Equal(t, uint64(1), skipped)
}

func TestSourceJSON(t *testing.T) {
	input := `{"ts":1459468983.5,"query":"example.com","qtype_name":"A","answers":["1.2.3.4","-"],"TTLs":[300.0,60]}` + "\n" +
		"\n" +
		`{"ts":"2016-04-01T00:03:04.5Z","query":"example.net","qtype_name":"AAAA","answers":["::1"],"TTLs":["30"]}` + "\n" +
		`{"_path":"conn","ts":1459468983.5,"query":"x","qtype_name":"A","answers":["1.1.1.1"],"TTLs":[1]}` + "\n" +
		`{"ts":1459468983.5,"query":"noanswers.com","qtype_name":"A"}` + "\n"

	src, err := NewSource(strings.NewReader(input), FormatAuto, 0, testLogger())
	require.Nil(t, err)
	assert.Equal(t, FormatJSON, src.Format())

	all := readAll(t, src)
	require.Len(t, all, 2)
	assert.Equal(t, []Answer{{"1.2.3.4", "300.0"}}, all[0].Answers)
	assert.Equal(t, "example.net", all[1].Query)
	assert.Equal(t, time.Date(2016, 4, 1, 0, 3, 4, 500000000, time.UTC), all[1].Timestamp)

	total, skipped := src.Counts()
	assert.Equal(t, uint64(4), total)
	assert.Equal(t, uint64(2), skipped)
}

func TestSourcePrefersAnsQuery(t *testing.T) {
	input := `{"ts":1,"query":"typed.example","ans_query":["answered.example\u0000"],"qtype_name":"A","answers":["1.2.3.4"],"TTLs":[1]}` + "\n"
	src, err := NewSource(strings.NewReader(input), FormatJSON, 0, testLogger())
	require.Nil(t, err)

	all := readAll(t, src)
	require.Len(t, all, 1)
	assert.Equal(t, "answered.example", all[0].Query)
}

func TestSourceSanityFilters(t *testing.T) {
	long := strings.Repeat("a", 20)
	input := tsvHeader +
		"1.0\tC1\t" + long + "\tA\t1.2.3.4\t1\n" +
		"1.0\tC2\tok.example\tA\t" + long + ",1.2.3.4\t1,2\n" +
		"1.0\tC3\tbad\x00name\tA\t1.2.3.4\t1\n" +
		"1.0\tC4\tshort.example\tA\t1.2.3.4,5.6.7.8,9.9.9.9\t1\n"

	src, err := NewSource(strings.NewReader(input), FormatTSV, 16, testLogger())
	require.Nil(t, err)

	all := readAll(t, src)
	require.Len(t, all, 1)
	assert.Equal(t, "short.example", all[0].Query)
	assert.Equal(t, []Answer{{"1.2.3.4", "1"}}, all[0].Answers)

	_, skipped := src.Counts()
	assert.Equal(t, uint64(3), skipped)
}

func TestSourceEmptyAndHeaderErrors(t *testing.T) {
	src, err := NewSource(strings.NewReader(""), FormatAuto, 0, testLogger())
	require.Nil(t, err)
	_, err = src.Next()
	assert.Equal(t, io.EOF, err)

	_, err = NewSource(strings.NewReader(""), FormatTSV, 0, testLogger())
	assert.Equal(t, files.ErrNoHeader, errors.Cause(err))

	_, err = NewSource(strings.NewReader("1459468983.5\texample.com\n"), FormatAuto, 0, testLogger())
	assert.Equal(t, files.ErrNoHeader, errors.Cause(err))

	conn := strings.Replace(tsvHeader, "#path\tdns", "#path\tconn", 1)
	_, err = NewSource(strings.NewReader(conn), FormatTSV, 0, testLogger())
	assert.NotNil(t, err)

	mismatch := strings.Replace(tsvHeader, "vector[string]\tvector[interval]", "count\tvector[interval]", 1)
	_, err = NewSource(strings.NewReader(mismatch), FormatTSV, 0, testLogger())
	assert.NotNil(t, err)
}

func TestSourceInvalidJSON(t *testing.T) {
	src, err := NewSource(strings.NewReader(`{"ts": 1, "query": `+"\n"), FormatAuto, 0, testLogger())
	require.Nil(t, err)
	_, err = src.Next()
	assert.NotNil(t, err)
	assert.NotEqual(t, io.EOF, err)
}

type truncatedReader struct {
	data io.Reader
}

func (r *truncatedReader) Read(p []byte) (int, error) {
	n, err := r.data.Read(p)
	if err == io.EOF {
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

func TestSourceTruncatedStream(t *testing.T) {
	input := tsvHeader + "1459468983.5\tC1\texample.com\tA\t1.2.3.4\t300\n1459468984.5\tC2\texamp"
	src, err := NewSource(&truncatedReader{strings.NewReader(input)}, FormatTSV, 0, testLogger())
	require.Nil(t, err)

	all := readAll(t, src)
	require.Len(t, all, 1)
	assert.Equal(t, "example.com", all[0].Query)
}
