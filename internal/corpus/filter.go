package corpus

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/helixir/paper-ingest-service/internal/domain"
)

// Filter pagination defaults and limits.
const (
	defaultFilterLimit = 100
	maxFilterLimit     = 1000
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func filterValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Filter selects records from a corpus snapshot. Zero-valued fields do not filter.
type Filter struct {
	// Provider keeps records whose source provider matches.
	Provider domain.SourceType `validate:"omitempty,max=64"`

	// Category keeps records carrying the category (exact match).
	Category string `validate:"omitempty,max=256"`

	// Tag keeps records carrying the tag (exact match).
	Tag string `validate:"omitempty,max=256"`

	// Query keeps records whose title or summary contains it, case-insensitively.
	Query string `validate:"omitempty,max=512"`

	// Since and Until bound PublishedAt, inclusive.
	Since time.Time
	Until time.Time

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int `validate:"gte=0,lte=1000"`

	// Offset specifies the starting position for pagination.
	Offset int `validate:"gte=0"`
}

// Validate checks field bounds and applies pagination defaults.
func (f *Filter) Validate() error {
	if err := filterValidator().Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domain.NewValidationError(strings.ToLower(fe.Field()), "failed "+fe.Tag()+" constraint")
		}
		return domain.NewValidationError("filter", err.Error())
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && f.Until.Before(f.Since) {
		return domain.NewValidationError("until", "must not be before since")
	}
	if f.Limit == 0 {
		f.Limit = defaultFilterLimit
	}
	return nil
}

// Matches reports whether r passes every set criterion.
func (f Filter) Matches(r domain.Record) bool {
	if f.Provider != "" && r.SourceProvider != f.Provider {
		return false
	}
	if f.Category != "" && !slices.Contains(r.Categories, f.Category) {
		return false
	}
	if f.Tag != "" && !slices.Contains(r.Tags, f.Tag) {
		return false
	}
	if !f.Since.IsZero() && r.PublishedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.PublishedAt.After(f.Until) {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(r.Title), q) && !strings.Contains(strings.ToLower(r.Summary), q) {
			return false
		}
	}
	return true
}

// Page is one filtered window of a corpus.
type Page struct {
	Records []domain.Record
	// Total is the number of matching records before pagination.
	Total int
}

// Filter returns the matching records in corpus order, paginated. The filter
// must already be validated.
func (c Corpus) Filter(f Filter) Page {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultFilterLimit
	}
	if limit > maxFilterLimit {
		limit = maxFilterLimit
	}

	var page Page
	for _, r := range c.records {
		if !f.Matches(r) {
			continue
		}
		if page.Total >= f.Offset && len(page.Records) < limit {
			page.Records = append(page.Records, r.Clone())
		}
		page.Total++
	}
	if page.Records == nil {
		page.Records = []domain.Record{}
	}
	return page
}
