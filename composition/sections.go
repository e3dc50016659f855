package composition

import "regexp"

// sectionMarker matches `<!-- SECTION: name -->content<!-- /SECTION: name -->`
// blocks. There is no surviving original_source/core/sections.py in the
// retrieval pack (it is referenced by engine.py and includes.py but was
// filtered out of the index), so the marker grammar here is reconstructed
// from its two call sites: SectionExtractor.extract_section(content, name)
// and SectionParser.strip_markers(content) in transformers/includes.py and
// engine.py's ValidationTransformer.
var sectionMarkerPattern = regexp.MustCompile(`(?s)<!--\s*SECTION:\s*([^\s-]+)\s*-->(.*?)<!--\s*/SECTION:\s*([^\s-]+)\s*-->`)

// extractSection returns the content between the named SECTION markers, or
// ("", false) if no matching pair exists.
func extractSection(content, name string) (string, bool) {
	for _, m := range sectionMarkerPattern.FindAllStringSubmatch(content, -1) {
		if m[1] == name && m[3] == name {
			return m[2], true
		}
	}
	return "", false
}

// stripSectionMarkers removes the SECTION/ /SECTION comment markers while
// keeping the content between them, used by the final validation step so
// markers never leak into composed output.
func stripSectionMarkers(content string) string {
	return sectionMarkerPattern.ReplaceAllString(content, "$2")
}
