package papersources

import (
	"regexp"
	"strings"

	"github.com/helixir/paper-ingest-service/internal/domain"
)

// arxivDOIPrefix is the DOI prefix DataCite assigns to arXiv preprints.
const arxivDOIPrefix = "10.48550/arxiv."

var (
	arxivVersionSuffix = regexp.MustCompile(`v[0-9]+$`)
	// Old-style ids carry an upper-case subject class (math.GT/0309136).
	arxivSubjectClass = regexp.MustCompile(`^([a-z\-]+)\.([a-zA-Z]{2})/`)
)

// NormalizeArXivID returns the bare arXiv identifier without version for an
// id, an "arXiv:" prefixed id, an abs/pdf URL or an arXiv DOI.
func NormalizeArXivID(s string) string {
	id := strings.TrimSpace(s)
	lower := strings.ToLower(id)
	for _, prefix := range []string{
		"https://arxiv.org/abs/", "http://arxiv.org/abs/",
		"https://arxiv.org/pdf/", "http://arxiv.org/pdf/",
		"https://doi.org/" + arxivDOIPrefix, arxivDOIPrefix,
		"arxiv:",
	} {
		if strings.HasPrefix(lower, prefix) {
			id = id[len(prefix):]
			break
		}
	}
	id = strings.TrimSuffix(strings.TrimSpace(id), ".pdf")
	id = arxivVersionSuffix.ReplaceAllString(id, "")
	if m := arxivSubjectClass.FindStringSubmatch(id); m != nil {
		id = strings.ToLower(m[1]) + "." + strings.ToUpper(m[2]) + "/" + id[len(m[0]):]
	}
	return id
}

// NormalizeDOI strips resolver and "doi:" prefixes and lowercases the DOI.
func NormalizeDOI(s string) string {
	doi := strings.ToLower(strings.TrimSpace(s))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		if strings.HasPrefix(doi, prefix) {
			doi = doi[len(prefix):]
			break
		}
	}
	return strings.TrimSpace(doi)
}

// SharedIDs adds the identifiers providers agree on to ids: the arXiv id
// under domain.SourceTypeArXiv and the DOI under domain.IdentifierDOI. An
// arXiv DOI also yields the arXiv id. Existing entries are kept.
func SharedIDs(ids map[domain.SourceType]string, arxivID, doi string) map[domain.SourceType]string {
	if ids == nil {
		ids = make(map[domain.SourceType]string, 2)
	}
	doi = NormalizeDOI(doi)
	if strings.TrimSpace(arxivID) == "" && strings.HasPrefix(doi, arxivDOIPrefix) {
		arxivID = doi
	}
	if id := NormalizeArXivID(arxivID); id != "" && ids[domain.SourceTypeArXiv] == "" {
		ids[domain.SourceTypeArXiv] = id
	}
	if doi != "" && ids[domain.IdentifierDOI] == "" {
		ids[domain.IdentifierDOI] = doi
	}
	return ids
}
