// Package svgtext applies small, targeted, idempotent edits to externally
// generated SVG markup. Tracer output is not guaranteed to be well-formed
// enough for structured DOM manipulation, so every rewrite here is a pure
// (markup) -> (markup) text transformation; re-applying any of them causes
// no further change.
package svgtext

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FallbackSize is used when the markup declares no usable dimensions.
const FallbackSize = 512

var (
	rootTagRe  = regexp.MustCompile(`(?is)<svg\b[^>]*>`)
	viewBoxRe  = regexp.MustCompile(`(?i)\bviewBox\s*=\s*"([^"]*)"`)
	widthRe    = regexp.MustCompile(`(?i)\bwidth\s*=\s*"([0-9.]+)(?:px)?"`)
	heightRe   = regexp.MustCompile(`(?i)\bheight\s*=\s*"([0-9.]+)(?:px)?"`)
	dimAttrRe  = regexp.MustCompile(`(?i)\s+(?:width|height)\s*=\s*"[^"]*"`)
	pathTagRe  = regexp.MustCompile(`(?is)<path\b[^>]*>`)
	fillAttrRe = regexp.MustCompile(`(?i)\bfill\s*=\s*"[^"]*"`)
	rectTagRe  = regexp.MustCompile(`(?is)<rect\b[^>]*/?>(?:\s*</rect>)?`)
	attrRe     = regexp.MustCompile(`(?i)([a-zA-Z-]+)\s*=\s*"([^"]*)"`)
)

// EmptyDocument returns a minimal valid SVG of the given size, used when the
// tracer yields empty or unusable output.
func EmptyDocument(width, height int) string {
	if width <= 0 {
		width = FallbackSize
	}
	if height <= 0 {
		height = FallbackSize
	}
	return fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d"></svg>`,
		width, height,
	)
}

// IsUsable reports whether the markup contains an svg root element at all.
func IsUsable(markup string) bool {
	return rootTagRe.MatchString(markup)
}

// Dimensions resolves the pixel size of the markup from its viewBox, falling
// back to width/height attributes and finally to FallbackSize.
func Dimensions(markup string) (int, int) {
	root := rootTagRe.FindString(markup)
	if root == "" {
		return FallbackSize, FallbackSize
	}
	if m := viewBoxRe.FindStringSubmatch(root); m != nil {
		fields := strings.Fields(m[1])
		if len(fields) == 4 {
			w, errW := strconv.ParseFloat(fields[2], 64)
			h, errH := strconv.ParseFloat(fields[3], 64)
			if errW == nil && errH == nil && w > 0 && h > 0 {
				return int(w), int(h)
			}
		}
	}
	w, h := declaredSize(root)
	return w, h
}

func declaredSize(root string) (int, int) {
	w, h := FallbackSize, FallbackSize
	if m := widthRe.FindStringSubmatch(root); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
			w = int(v)
		}
	}
	if m := heightRe.FindStringSubmatch(root); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
			h = int(v)
		}
	}
	return w, h
}

// EnsureViewBox synthesizes a viewBox from declared width/height when the
// root element lacks one, then strips the literal width/height attributes so
// the document scales to its container.
func EnsureViewBox(markup string) string {
	root := rootTagRe.FindString(markup)
	if root == "" {
		return markup
	}
	updated := root
	if !viewBoxRe.MatchString(root) {
		w, h := declaredSize(root)
		updated = strings.Replace(updated, "<svg", fmt.Sprintf(`<svg viewBox="0 0 %d %d"`, w, h), 1)
	}
	updated = dimAttrRe.ReplaceAllString(updated, "")
	return strings.Replace(markup, root, updated, 1)
}

// RecolorPaths rewrites the fill of every path element to the given color,
// adding the attribute where it is missing.
func RecolorPaths(markup, color string) string {
	return pathTagRe.ReplaceAllStringFunc(markup, func(tag string) string {
		if fillAttrRe.MatchString(tag) {
			return fillAttrRe.ReplaceAllString(tag, `fill="`+color+`"`)
		}
		return strings.Replace(tag, "<path", `<path fill="`+color+`"`, 1)
	})
}

// RemoveCanvasBackground deletes any full-canvas white rectangle the tracer
// emitted, so it cannot override the caller's transparency choice. A rect
// qualifies when it sits at the origin, spans the whole canvas in absolute
// or percentage coordinates, and carries a white-equivalent fill.
func RemoveCanvasBackground(markup string, width, height int) string {
	return rectTagRe.ReplaceAllStringFunc(markup, func(tag string) string {
		attrs := parseAttrs(tag)
		if !isZero(attrs["x"]) || !isZero(attrs["y"]) {
			return tag
		}
		if !coversCanvas(attrs["width"], width) || !coversCanvas(attrs["height"], height) {
			return tag
		}
		if !isWhite(attrs["fill"]) {
			return tag
		}
		return ""
	})
}

// InjectBackground inserts a full-canvas rectangle of the given color as the
// first child of the root element. A matching rect already in first position
// is left alone, keeping the operation idempotent.
func InjectBackground(markup, color string, width, height int) string {
	root := rootTagRe.FindString(markup)
	if root == "" {
		return markup
	}
	rect := fmt.Sprintf(`<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`, width, height, color)
	idx := strings.Index(markup, root) + len(root)
	if strings.HasPrefix(markup[idx:], rect) {
		return markup
	}
	return markup[:idx] + rect + markup[idx:]
}

func parseAttrs(tag string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(tag, -1) {
		attrs[strings.ToLower(m[1])] = strings.TrimSpace(m[2])
	}
	return attrs
}

func isZero(v string) bool {
	if v == "" {
		return true
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
	return err == nil && f == 0
}

func coversCanvas(v string, canvas int) bool {
	if v == "100%" {
		return true
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
	return err == nil && int(f) == canvas
}

func isWhite(v string) bool {
	switch strings.ToLower(strings.ReplaceAll(v, " ", "")) {
	case "#fff", "#ffffff", "white", "rgb(255,255,255)":
		return true
	}
	return false
}
