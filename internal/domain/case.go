package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// OriginCode identifies the lower tribunal or agency a case came from.
type OriginCode string

const (
	OriginCFC  OriginCode = "CFC"
	OriginCIT  OriginCode = "CIT"
	OriginCAVC OriginCode = "CAVC"
	OriginDCT  OriginCode = "DCT"
	OriginITC  OriginCode = "ITC"
	OriginMSPB OriginCode = "MSPB"
	OriginPTO  OriginCode = "PTO"
	OriginBCA  OriginCode = "BCA"
	OriginARB  OriginCode = "ARB"
	OriginBVA  OriginCode = "BVA"
)

// ParseOriginCode normalizes user input such as " cfc " into an OriginCode.
func ParseOriginCode(raw string) (OriginCode, error) {
	code := OriginCode(strings.ToUpper(strings.TrimSpace(raw)))
	if code == "" {
		return "", fmt.Errorf("%w: empty origin code", ErrInvalidQuery)
	}
	return code, nil
}

// Label is the option text of the code in the site's origin selector, which
// lists origins by their code.
func (c OriginCode) Label() string { return string(c) }

// Query is the logical filter for one discovery run.
type Query struct {
	from    time.Time
	to      time.Time
	origins []OriginCode
}

// NewQuery validates the range and dedupes origins. A zero to-date means "same as from".
func NewQuery(from, to time.Time, origins []OriginCode) (Query, error) {
	if from.IsZero() {
		return Query{}, fmt.Errorf("%w: from date is required", ErrInvalidQuery)
	}
	if to.IsZero() {
		to = from
	}
	if to.Before(from) {
		return Query{}, fmt.Errorf("%w: from %s is after to %s", ErrInvalidQuery,
			from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	seen := make(map[OriginCode]struct{}, len(origins))
	unique := make([]OriginCode, 0, len(origins))
	for _, o := range origins {
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		unique = append(unique, o)
	}

	return Query{from: from, to: to, origins: unique}, nil
}

func (q Query) From() time.Time { return q.from }
func (q Query) To() time.Time   { return q.to }

// Origins returns a copy; an empty result means no origin restriction.
func (q Query) Origins() []OriginCode { return slices.Clone(q.origins) }

func (q Query) String() string {
	origins := make([]string, len(q.origins))
	for i, o := range q.origins {
		origins[i] = string(o)
	}
	return fmt.Sprintf("%s..%s [%s]", q.from.Format(time.DateOnly), q.to.Format(time.DateOnly), strings.Join(origins, ","))
}

// CaseRecord is one published opinion or order. DocumentURL is the natural key.
type CaseRecord struct {
	ReleaseDate  time.Time `json:"release_date"`
	AppealNumber string    `json:"appeal_number"`
	CaseName     string    `json:"case_name"`
	Origin       string    `json:"origin"`
	Status       string    `json:"status"`
	DocumentURL  string    `json:"document_url"`
}

// PageResult holds the records of one rendered page in row order.
type PageResult []CaseRecord

// URLs lists the document links of the page.
func (p PageResult) URLs() []string {
	urls := make([]string, len(p))
	for i, r := range p {
		urls[i] = r.DocumentURL
	}
	return urls
}

// AggregateResult is the page-then-row concatenation of a pagination run.
type AggregateResult struct {
	Records []CaseRecord
	Pages   int
}

// Fold returns a new aggregate with page appended; the receiver is left untouched.
func (a AggregateResult) Fold(page PageResult) AggregateResult {
	records := make([]CaseRecord, 0, len(a.Records)+len(page))
	records = append(records, a.Records...)
	records = append(records, page...)
	return AggregateResult{Records: records, Pages: a.Pages + 1}
}

// URLs lists document links in aggregate order, duplicates included.
func (a AggregateResult) URLs() []string {
	return PageResult(a.Records).URLs()
}

func (a AggregateResult) Len() int { return len(a.Records) }

// Discovery is the outcome of one source run. Warnings carry non-fatal
// conditions such as a partially applied filter or the page cap.
type Discovery struct {
	Result   AggregateResult
	Warnings []error
}
