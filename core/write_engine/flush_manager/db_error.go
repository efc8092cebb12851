package flushmanager

import "errors"

// --- Error Definitions ---

var (
	ErrIO              = errors.New("i/o error")
	ErrPoolExhausted   = errors.New("page pool is empty and no resident page can be evicted")
	ErrInvalidPageNum  = errors.New("invalid page number")
	ErrInvalidPageData = errors.New("invalid page data")
	ErrDiskClosed      = errors.New("disk manager is closed")
)
