package storage

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// Role is what an object is for within a product.
type Role string

const (
	RoleCover        Role = "cover"
	RoleDocument     Role = "document"
	RoleAudio        Role = "audio"
	RoleChapter      Role = "chapter"
	RoleSample       Role = "sample"
	RoleSummaryAudio Role = "summary-audio"
	RoleArchive      Role = "archive"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCover, RoleDocument, RoleAudio, RoleChapter, RoleSample, RoleSummaryAudio, RoleArchive:
		return r, nil
	}
	return "", fmt.Errorf("unknown file role %q", s)
}

const productsRoot = "products"

// BasePath is where every object of a product lives. It never changes for
// the lifetime of the product: it is the only link between the row and its
// bytes.
func BasePath(slug string) string {
	return productsRoot + "/" + slug
}

// Layout builds the keys of one product.
type Layout struct {
	Base string
	Slug string
}

// For returns the layout of a product, defaulting base to BasePath(slug).
func For(base, slug string) Layout {
	if base == "" {
		base = BasePath(slug)
	}
	return Layout{Base: strings.TrimSuffix(base, "/"), Slug: slug}
}

func (l Layout) Prefix() string { return l.Base + "/" }

func (l Layout) ChapterPrefix() string { return l.Base + "/chapters/" }

func (l Layout) SummaryPrefix() string { return l.Base + "/audio_summary/" }

func (l Layout) Document() string { return l.Base + "/" + l.Slug + ".pdf" }

func (l Layout) Archive() string { return l.Base + "/" + l.Slug + "_audio.zip" }

// Chapter names chapter n with a zero padded sequence so that key order is
// chapter order.
func (l Layout) Chapter(n int, ext string) string {
	return fmt.Sprintf("%s%s_chapter_%02d.%s", l.ChapterPrefix(), l.Slug, n, cleanExt(ext))
}

// Key builds the key of a single-object role. Chapters need Chapter.
func (l Layout) Key(role Role, ext string) (string, error) {
	ext = cleanExt(ext)
	if ext == "" && role != RoleArchive {
		return "", errors.New("missing file extension")
	}

	switch role {
	case RoleCover:
		return l.Base + "/cover." + ext, nil
	case RoleDocument:
		return l.Base + "/" + l.Slug + "." + ext, nil
	case RoleAudio:
		return l.Base + "/" + l.Slug + "." + ext, nil
	case RoleSample:
		return l.Base + "/sample." + ext, nil
	case RoleSummaryAudio:
		return l.SummaryPrefix() + l.Slug + "_SUMMARY." + ext, nil
	case RoleArchive:
		return l.Archive(), nil
	case RoleChapter:
		return "", errors.New("chapter keys need a chapter number")
	}
	return "", fmt.Errorf("unknown file role %q", role)
}

func cleanExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Ext returns the lowercase extension of a file name without the dot.
func Ext(name string) string {
	return cleanExt(path.Ext(name))
}

var audioExts = map[string]bool{
	"mp3":  true,
	"m4a":  true,
	"m4b":  true,
	"aac":  true,
	"ogg":  true,
	"opus": true,
	"wav":  true,
	"flac": true,
}

// IsAudio reports whether key carries a recognized audio extension.
func IsAudio(key string) bool {
	return audioExts[Ext(key)]
}

var chapterRx = regexp.MustCompile(`(?i)chapter[_\- ]?(\d+)`)

// ChapterNumber extracts N from a "chapter_<N>" file name.
func ChapterNumber(name string) (int, bool) {
	m := chapterRx.FindStringSubmatch(path.Base(name))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

var contentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"mp4":  "audio/mp4",
	"m4a":  "audio/mp4",
	"m4b":  "audio/mp4",
	"aac":  "audio/aac",
	"ogg":  "audio/ogg",
	"opus": "audio/opus",
	"wav":  "audio/wav",
	"flac": "audio/flac",
	"pdf":  "application/pdf",
	"epub": "application/epub+zip",
	"mobi": "application/x-mobipocket-ebook",
	"zip":  "application/zip",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
}

const octetStream = "application/octet-stream"

func ContentType(ext string) string {
	if ct, ok := contentTypes[cleanExt(ext)]; ok {
		return ct
	}
	return octetStream
}
