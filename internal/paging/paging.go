package paging

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Params struct {
	Page     int `schema:"page"      json:"page"      validate:"omitempty,min=1"`
	PageSize int `schema:"page_size" json:"page_size" validate:"omitempty,min=1,max=100"`
}

func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.PageSize < 1:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	return p
}

func (p Params) Limit() uint64 { return uint64(p.Normalize().PageSize) }

func (p Params) Offset() uint64 {
	n := p.Normalize()
	return uint64((n.Page - 1) * n.PageSize)
}

type Result[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func NewResult[T any](items []T, total int, p Params) Result[T] {
	n := p.Normalize()
	if items == nil {
		items = []T{}
	}
	return Result[T]{Items: items, Total: total, Page: n.Page, PageSize: n.PageSize}
}
