// Package article implements the article fetch stage: live extraction of
// each candidate URL, the raw article store and normalized output records.
package article

import (
	"context"
	"fmt"
)

// Kind classifies the outcome of extracting one URL.
type Kind int

const (
	KindSuccess Kind = iota
	KindEmpty
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindEmpty:
		return "empty"
	case KindFailed:
		return "failed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Result is the outcome of an extraction. Article is set only for
// KindSuccess and Err only for KindFailed.
type Result struct {
	Kind    Kind
	Article *Article
	Err     error
}

// Success wraps an extracted article.
func Success(a *Article) Result {
	return Result{Kind: KindSuccess, Article: a}
}

// Empty reports a page that was reachable but held nothing to extract.
func Empty() Result {
	return Result{Kind: KindEmpty}
}

// Failed wraps an extraction error.
func Failed(err error) Result {
	return Result{Kind: KindFailed, Err: err}
}

// Extractor turns a live article URL into an Article.
type Extractor interface {
	Extract(ctx context.Context, url string) Result
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, url string) Result

// Extract calls f(ctx, url).
func (f ExtractorFunc) Extract(ctx context.Context, url string) Result {
	return f(ctx, url)
}
