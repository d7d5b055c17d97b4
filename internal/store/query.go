package store

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns a search term into an ILIKE "contains" pattern.
// An empty term yields an empty pattern, which the queries treat as "no filter".
func likePattern(term string) string {
	term = strings.TrimSpace(term)
	if term == "" {
		return ""
	}
	return "%" + likeEscaper.Replace(term) + "%"
}
