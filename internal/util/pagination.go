package util

import (
	"math"
	"strconv"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	maxPage = math.MaxInt / MaxPageSize
)

// Page is a window over an ordered result. A zero Limit means no window.
type Page struct {
	Offset int
	Limit  int
}

// ParsePage reads 1-based page and size query values. When both are empty the
// caller gets the whole result.
func ParsePage(page, size string) Page {
	if page == "" && size == "" {
		return Page{}
	}
	p, _ := strconv.Atoi(page)
	s, _ := strconv.Atoi(size)
	if p < 1 {
		p = 1
	}
	if p > maxPage {
		p = maxPage
	}
	if s <= 0 || s > MaxPageSize {
		s = DefaultPageSize
	}
	return Page{Offset: (p - 1) * s, Limit: s}
}
