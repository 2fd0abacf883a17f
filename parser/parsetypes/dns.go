package parsetypes

import (
	"strings"
)

type (
	// DNS provides a data structure for the fields of zeek's dns log
	// needed to build passive dns observations
	DNS struct {
		// Path names the log this entry came from in JSON logs
		Path string `json:"_path"`
		// TimeStamp of this dns exchange
		TimeStamp Timestamp `bro:"ts" brotype:"time" json:"ts"`
		// Query is the domain name that is the subject of the DNS query
		Query string `bro:"query" brotype:"string" json:"query"`
		// AnsQuery is the query name as it appeared in the answer section,
		// only written by some zeek scripts
		AnsQuery []string `bro:"ans_query" brotype:"vector[string]|set[string]" json:"ans_query"`
		// QTypeName is a descriptive name for the query type
		QTypeName string `bro:"qtype_name" brotype:"string" json:"qtype_name"`
		// Answers is the set of resource descriptions in the query answer
		Answers []string `bro:"answers" brotype:"vector[string]|set[string]" json:"answers"`
		// TTLs is the caching intervals of the RRs in the Answers field
		TTLs TTLVector `bro:"TTLs" brotype:"vector[interval]" json:"TTLs"`
	}
)

//Normalize strips the trailing NUL padding some resolvers leave on names
func (in *DNS) Normalize() {
	in.Query = strings.TrimRight(in.Query, "\x00")
	for i := range in.AnsQuery {
		in.AnsQuery[i] = strings.TrimRight(in.AnsQuery[i], "\x00")
	}
}

//QueryName returns the name the answers belong to, preferring the
//name from the answer section when the log carries one
func (in *DNS) QueryName() string {
	if len(in.AnsQuery) > 0 && in.AnsQuery[0] != "" {
		return in.AnsQuery[0]
	}
	return in.Query
}
