package files

import (
	"github.com/pkg/errors"
)

//ErrNoHeader is returned when a TSV log does not start with a Zeek header
var ErrNoHeader = errors.New("log does not contain a #fields header")

//ErrTypeMismatch is returned when the header declares a known field
//with a type the parser cannot decode into
var ErrTypeMismatch = errors.New("type mismatch found in log")

//BroHeader contains the parse information contained within the comment lines
//of Zeek files
type BroHeader struct {
	Names     []string // Names of fields
	Types     []string // Types of fields
	Separator string   // Field separator
	SetSep    string   // Set separator
	Empty     string   // Empty field tag
	Unset     string   // Unset field tag
	ObjType   string   // Object type (comes from #path)
}

//newBroHeader returns a header holding the defaults Zeek writes
func newBroHeader() *BroHeader {
	return &BroHeader{
		Separator: "\t",
		SetSep:    ",",
		Empty:     "(empty)",
		Unset:     "-",
	}
}

//ZeekHeaderIndexMap maps the indexes of the fields in the ZeekHeader to the respective
//indexes in the parsetype.BroData structs
type ZeekHeaderIndexMap struct {
	NthLogFieldExistsInParseType []bool
	NthLogFieldParseTypeOffset   []int
}
