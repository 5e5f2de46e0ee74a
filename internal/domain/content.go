package domain

// ContentType classifies a retrievable item. Backends store it alongside the
// content and queries may narrow to a subset.
type ContentType string

const (
	ContentDocument ContentType = "document"
	ContentArticle  ContentType = "article"
	ContentReport   ContentType = "report"
	ContentEntity   ContentType = "entity"
)

// IsValid reports whether t is a known content type.
func (t ContentType) IsValid() bool {
	switch t {
	case ContentDocument, ContentArticle, ContentReport, ContentEntity:
		return true
	}
	return false
}

// AllContentTypes returns every known content type in lexical order.
func AllContentTypes() []ContentType {
	return []ContentType{ContentArticle, ContentDocument, ContentEntity, ContentReport}
}
