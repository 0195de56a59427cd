package documents

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/models"
)

type ListRequest struct {
	models.Pagination
}

func NewListRequest() *ListRequest {
	return &ListRequest{Pagination: models.NewPagination(models.DefaultPaginationLimit, 0)}
}

func (d *ListRequest) Bind(r *http.Request) error {
	return nil
}

func (d *ListRequest) GetQuery() url.Values {
	values := make(url.Values)
	values.Set("limit", strconv.Itoa(d.Limit))
	if d.Offset > 0 {
		values.Set("offset", strconv.Itoa(d.Offset))
	}
	return values
}

func (d *ListRequest) FromQuery(values url.Values) error {
	var (
		limit  int
		offset int
		err    error
	)
	if str := values.Get("limit"); str != "" {
		limit, err = strconv.Atoi(str)
		if err != nil {
			return gerror.NewErrInvalidQueryParameter("error decoding limit").Wrap(err)
		}
	}
	if str := values.Get("offset"); str != "" {
		offset, err = strconv.Atoi(str)
		if err != nil || offset < 0 {
			return gerror.NewErrInvalidQueryParameter(fmt.Sprintf("error invalid offset %q", str)).Wrap(err)
		}
	}
	d.Pagination = models.NewPagination(limit, offset)
	return nil
}

// Next returns the request for the page after this one.
func (d *ListRequest) Next() *ListRequest {
	return &ListRequest{Pagination: models.NewPagination(d.Limit, d.Offset+d.Limit)}
}

type ListResponse struct {
	// The kind of objects contained in the results
	Kind models.ResourceKind `json:"kind,omitempty"`
	// A set of results, normally an array of objects
	Results interface{} `json:"results"`
	// A URL to fetch to obtain the next page of results after this one, or empty if this is the last page
	NextURL string `json:"next_url"`
}

func NewListResponse(kind models.ResourceKind, link string, req *ListRequest, results interface{}, hasMore bool) *ListResponse {
	res := &ListResponse{Kind: kind, Results: results}
	if hasMore && req != nil {
		res.NextURL = AddQueryParams(link, req.Next().GetQuery()).String()
	}
	return res
}

// AddQueryParams returns a new url with the specified query parameters added.
func AddQueryParams(link string, values url.Values) *url.URL {
	u, err := url.Parse(link)
	if err != nil {
		panic(err)
	}
	query := u.Query()
	for key, value := range values {
		for _, v := range value {
			query.Add(key, v)
		}
	}
	u.RawQuery = query.Encode()
	return u
}
