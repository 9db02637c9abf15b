package dispatch

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/cordal/cordal/internal/apierrors"
	"github.com/cordal/cordal/internal/config"
)

// pageRequest is the resolved, clamped page/size pair for a PAGED
// endpoint, per spec.md §4.8 step 3.
type pageRequest struct {
	Page int
	Size int
}

// resolvePagination parses the page/size query parameters, rejecting
// anything unparseable or out of range with a 400 rather than silently
// falling back to a default — a caller that asked for "size=abc" almost
// certainly wants to know its request was wrong, not get page 1 back.
func resolvePagination(r *http.Request, spec config.PaginationSpec) (pageRequest, *apierrors.Error) {
	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return pageRequest{}, apierrors.BadRequest(fmt.Sprintf("invalid page %q: must be a non-negative integer", raw))
		}
		page = v
	}

	size := spec.DefaultSize
	if size <= 0 {
		size = 20
	}
	if raw := r.URL.Query().Get("size"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return pageRequest{}, apierrors.BadRequest(fmt.Sprintf("invalid size %q: must be a positive integer", raw))
		}
		size = v
	}
	if spec.MaxSize > 0 && size > spec.MaxSize {
		size = spec.MaxSize
	}

	return pageRequest{Page: page, Size: size}, nil
}

func (p pageRequest) limit() int  { return p.Size }
func (p pageRequest) offset() int { return p.Page * p.Size }

// pagedEnvelope is the PAGED response shape from spec.md §4.8 step 5.
type pagedEnvelope struct {
	Data          any   `json:"data"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int64 `json:"totalPages"`
	HasNext       bool  `json:"hasNext"`
	HasPrevious   bool  `json:"hasPrevious"`
}

func buildPagedEnvelope(data any, p pageRequest, totalElements int64) pagedEnvelope {
	totalPages := int64(0)
	if p.Size > 0 {
		totalPages = int64(math.Ceil(float64(totalElements) / float64(p.Size)))
	}
	return pagedEnvelope{
		Data:          data,
		Page:          p.Page,
		Size:          p.Size,
		TotalElements: totalElements,
		TotalPages:    totalPages,
		HasNext:       int64(p.Page) < totalPages-1,
		HasPrevious:   p.Page > 0,
	}
}
