package catalog

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/fjod/storefront/internal/domain"
)

const (
	DefaultLimit = 10
	DefaultPage  = 1
	MaxLimit     = 100

	SortAsc  = "asc"
	SortDesc = "desc"

	StatusSuccess = "success"
	StatusError   = "error"
)

// QueryOptions are the raw listing options as a client sent them. Status is
// kept verbatim (nil when absent) so links can echo it back.
type QueryOptions struct {
	Limit    int
	Page     int
	Sort     string
	Query    string
	Category string
	Status   *string
}

// ParseQueryOptions reads listing options from a URL query. Non-numeric or
// non-positive limit/page fall back to the defaults, limit is capped at
// MaxLimit and unknown sort values are dropped.
func ParseQueryOptions(values url.Values) QueryOptions {
	opts := QueryOptions{
		Limit:    min(positiveInt(values.Get("limit"), DefaultLimit), MaxLimit),
		Page:     positiveInt(values.Get("page"), DefaultPage),
		Query:    strings.TrimSpace(values.Get("query")),
		Category: strings.TrimSpace(values.Get("category")),
	}
	switch s := strings.ToLower(strings.TrimSpace(values.Get("sort"))); s {
	case SortAsc, SortDesc:
		opts.Sort = s
	}
	if _, ok := values["status"]; ok {
		status := values.Get("status")
		opts.Status = &status
	}
	return opts
}

func positiveInt(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return def
	}
	return n
}

// normalized fills defaults for options built in code rather than parsed.
func (o QueryOptions) normalized() QueryOptions {
	if o.Limit < 1 {
		o.Limit = DefaultLimit
	}
	o.Limit = min(o.Limit, MaxLimit)
	if o.Page < 1 {
		o.Page = DefaultPage
	}
	return o
}

// ToQuery turns options into a store-neutral product query.
func (o QueryOptions) ToQuery() domain.ProductQuery {
	o = o.normalized()
	q := domain.ProductQuery{
		Filter: domain.ProductFilter{
			Text:     o.Query,
			Category: o.Category,
		},
		Page:  o.Page,
		Limit: o.Limit,
	}
	if o.Status != nil {
		status := coerceBool(*o.Status)
		q.Filter.Status = &status
	}
	switch o.Sort {
	case SortAsc:
		q.Sort = domain.SortPriceAsc
	case SortDesc:
		q.Sort = domain.SortPriceDesc
	}
	return q
}

// coerceBool accepts only "true" (any case) as true.
func coerceBool(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), "true")
}

// BuildLink renders the listing URL for targetPage, keeping every option that
// differs from its default. page comes first, then limit, sort, query,
// category and status.
func BuildLink(basePath string, o QueryOptions, targetPage int) string {
	o = o.normalized()

	var b strings.Builder
	b.WriteString(basePath)
	b.WriteString("?page=")
	b.WriteString(strconv.Itoa(targetPage))

	add := func(key, value string) {
		b.WriteByte('&')
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(value))
	}
	if o.Limit != DefaultLimit {
		add("limit", strconv.Itoa(o.Limit))
	}
	if o.Sort != "" {
		add("sort", o.Sort)
	}
	if o.Query != "" {
		add("query", o.Query)
	}
	if o.Category != "" {
		add("category", o.Category)
	}
	if o.Status != nil {
		add("status", *o.Status)
	}
	return b.String()
}

// Listing is the paginated result envelope.
type Listing struct {
	Status      string           `json:"status"`
	Payload     []domain.Product `json:"payload"`
	TotalPages  int              `json:"totalPages"`
	PrevPage    *int             `json:"prevPage"`
	NextPage    *int             `json:"nextPage"`
	Page        int              `json:"page"`
	HasPrevPage bool             `json:"hasPrevPage"`
	HasNextPage bool             `json:"hasNextPage"`
	PrevLink    *string          `json:"prevLink"`
	NextLink    *string          `json:"nextLink"`
	Message     string           `json:"message,omitempty"`
}

// MarshalJSON drops the pagination fields from error listings.
func (l Listing) MarshalJSON() ([]byte, error) {
	if l.Status == StatusError {
		return json.Marshal(struct {
			Status  string           `json:"status"`
			Payload []domain.Product `json:"payload"`
			Message string           `json:"message"`
		}{l.Status, nonNil(l.Payload), l.Message})
	}
	type plain Listing
	p := plain(l)
	p.Payload = nonNil(p.Payload)
	return json.Marshal(p)
}

func nonNil(items []domain.Product) []domain.Product {
	if items == nil {
		return []domain.Product{}
	}
	return items
}

// NewListing shapes a page of results into the envelope, computing the
// navigation fields. An empty result still has one page.
func NewListing(basePath string, o QueryOptions, page *domain.ProductPage) Listing {
	o = o.normalized()

	totalPages := int((page.Total + int64(o.Limit) - 1) / int64(o.Limit))
	if totalPages < 1 {
		totalPages = 1
	}

	l := Listing{
		Status:      StatusSuccess,
		Payload:     nonNil(page.Items),
		TotalPages:  totalPages,
		Page:        o.Page,
		HasPrevPage: o.Page > 1,
		HasNextPage: o.Page < totalPages,
	}
	if l.HasPrevPage {
		prev := o.Page - 1
		link := BuildLink(basePath, o, prev)
		l.PrevPage, l.PrevLink = &prev, &link
	}
	if l.HasNextPage {
		next := o.Page + 1
		link := BuildLink(basePath, o, next)
		l.NextPage, l.NextLink = &next, &link
	}
	return l
}

// ErrorListing is the recovered form of a failed listing.
func ErrorListing(err error) Listing {
	return Listing{
		Status:  StatusError,
		Payload: []domain.Product{},
		Message: err.Error(),
	}
}
