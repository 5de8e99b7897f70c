package storage

import (
	"errors"
	"fmt"
	"strings"
)

const mb = 1024 * 1024

var (
	ErrTooLarge    = errors.New("file too large")
	ErrInvalidType = errors.New("invalid file type")
)

var maxSizes = map[Role]int64{
	RoleCover:        5 * mb,
	RoleDocument:     100 * mb,
	RoleAudio:        500 * mb,
	RoleChapter:      500 * mb,
	RoleSample:       50 * mb,
	RoleSummaryAudio: 200 * mb,
	RoleArchive:      2048 * mb,
}

var (
	imageTypes = []string{"image/jpeg", "image/jpg", "image/png", "image/webp"}
	docTypes   = []string{"application/pdf", "application/epub+zip"}
	audioTypes = []string{"audio/mpeg", "audio/mp3", "audio/mp4", "audio/m4a", "audio/x-m4a", "audio/aac", "audio/ogg", "audio/opus", "audio/wav", "audio/flac"}
)

var allowedTypes = map[Role][]string{
	RoleCover:        imageTypes,
	RoleDocument:     docTypes,
	RoleAudio:        audioTypes,
	RoleChapter:      audioTypes,
	RoleSample:       append(append([]string{}, docTypes...), audioTypes...),
	RoleSummaryAudio: audioTypes,
	RoleArchive:      {"application/zip", "application/x-zip-compressed"},
}

// MaxSize is the upload ceiling of a role.
func MaxSize(role Role) int64 {
	return maxSizes[role]
}

// Validate checks an upload against the size ceiling and accepted content
// types of its role.
func Validate(role Role, size int64, contentType string) error {
	max, ok := maxSizes[role]
	if !ok {
		return fmt.Errorf("unknown file role %q", role)
	}
	if size > max {
		return fmt.Errorf("%w: maximum size for %s is %dMB", ErrTooLarge, role, max/mb)
	}

	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, a := range allowedTypes[role] {
		if ct == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s accepts %s", ErrInvalidType, role, strings.Join(allowedTypes[role], ", "))
}
