package crawl

import "fmt"

// variantTemplates are the search phrasings layered onto a base
// keyword when a plain search stalls. Vietnamese market phrasing, same
// order the platforms see them.
var variantTemplates = []string{
	"%s",
	"%s giá rẻ",
	"%s tốt nhất",
	"mua %s",
	"%s sale",
	"%s hot",
	"%s 2025",
	"%s đáng mua",
	"%s review",
	"%s chất lượng",
}

// Variants expands a base keyword into up to n search variants, the
// base keyword always first.
func Variants(base string, n int) []string {
	if base == "" {
		return nil
	}
	if n <= 0 || n > len(variantTemplates) {
		n = len(variantTemplates)
	}
	out := make([]string, 0, n)
	for _, tmpl := range variantTemplates[:n] {
		out = append(out, fmt.Sprintf(tmpl, base))
	}
	return out
}
