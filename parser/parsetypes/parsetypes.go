package parsetypes

//BroData holds a line of a bro log
type BroData interface {
	// Normalize cleans up values after a line has been decoded
	Normalize()
}

//NewBroDataFactory creates a new BroData based on the string
//which appears in that log's objType field
func NewBroDataFactory(fileType string) func() BroData {
	switch fileType {
	case "dns":
		return func() BroData {
			return &DNS{}
		}
	}
	return nil
}

// Zeek types the TSV reader can decode. The full list is documented at
// https://docs.zeek.org/en/master/script-reference/types.html
const (
	// Time is an absolute time written as epoch seconds with a fraction
	Time = "time"

	// String holds character data
	String = "string"

	// Enum holds one of a fixed set of names
	Enum = "enum"

	// Addr is an IPv4 or IPv6 address
	Addr = "addr"

	// StringSet is an unordered collection of strings
	StringSet = "set[string]"

	// EnumSet is an unordered collection of enums
	EnumSet = "set[enum]"

	// StringVector is an ordered collection of strings
	StringVector = "vector[string]"

	// IntervalVector is an ordered collection of relative times in seconds
	IntervalVector = "vector[interval]"
)
