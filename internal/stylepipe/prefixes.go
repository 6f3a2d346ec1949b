package stylepipe

// propertyPrefixes maps CSS property names to the vendors that still need a
// prefixed copy, in output order
var propertyPrefixes = map[string][]string{
	// Interaction
	"appearance":  {"webkit", "moz"},
	"user-select": {"webkit", "moz", "ms"},

	// Typography
	"hyphens":                 {"webkit", "ms"},
	"text-size-adjust":        {"webkit", "moz", "ms"},
	"tab-size":                {"moz"},
	"text-emphasis":           {"webkit"},
	"text-emphasis-color":     {"webkit"},
	"text-emphasis-position":  {"webkit"},
	"text-emphasis-style":     {"webkit"},
	"initial-letter":          {"webkit"},
	"box-decoration-break":    {"webkit"},
	"print-color-adjust":      {"webkit"},
	"text-decoration-skip":    {"webkit"},
	"font-kerning":            {"webkit"},
	"text-orientation":        {"webkit"},
	"writing-mode":            {"ms"},
	"text-combine-upright":    {"webkit"},
	"text-decoration-style":   {"webkit"},
	"text-decoration-line":    {"webkit"},
	"text-decoration-color":   {"webkit"},
	"text-underline-position": {"webkit"},

	// Effects
	"backdrop-filter": {"webkit"},
	"clip-path":       {"webkit"},
	"mask":            {"webkit"},
	"mask-image":      {"webkit"},
	"mask-size":       {"webkit"},
	"mask-position":   {"webkit"},
	"mask-repeat":     {"webkit"},
	"mask-clip":       {"webkit"},
	"mask-origin":     {"webkit"},
	"mask-composite":  {"webkit"},

	// Transforms and animation
	"transform":                  {"webkit", "ms"},
	"transform-origin":           {"webkit", "ms"},
	"transition":                 {"webkit"},
	"transition-property":        {"webkit"},
	"transition-duration":        {"webkit"},
	"transition-timing-function": {"webkit"},
	"transition-delay":           {"webkit"},
	"animation":                  {"webkit"},
	"animation-name":             {"webkit"},
	"animation-duration":         {"webkit"},
	"animation-timing-function":  {"webkit"},
	"animation-delay":            {"webkit"},
	"animation-iteration-count":  {"webkit"},
	"animation-direction":        {"webkit"},
	"animation-fill-mode":        {"webkit"},
	"animation-play-state":       {"webkit"},
	"backface-visibility":        {"webkit"},
	"perspective":                {"webkit"},

	// Layout
	"flex":            {"webkit", "ms"},
	"flex-direction":  {"webkit"},
	"flex-wrap":       {"webkit"},
	"flex-flow":       {"webkit"},
	"flex-grow":       {"webkit"},
	"flex-shrink":     {"webkit"},
	"flex-basis":      {"webkit"},
	"order":           {"webkit"},
	"align-items":     {"webkit"},
	"align-self":      {"webkit"},
	"align-content":   {"webkit"},
	"justify-content": {"webkit"},
}

// prefixedValue is a vendor-specific replacement for a declaration value
type prefixedValue struct {
	Vendor string
	Value  string
}

// valuePrefixes maps property → unprefixed value → prefixed values
var valuePrefixes = map[string]map[string][]prefixedValue{
	"display": {
		"flex":        {{"webkit", "-webkit-box"}, {"ms", "-ms-flexbox"}},
		"inline-flex": {{"webkit", "-webkit-inline-box"}, {"ms", "-ms-inline-flexbox"}},
	},
	"position": {
		"sticky": {{"webkit", "-webkit-sticky"}},
	},
}
