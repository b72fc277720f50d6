// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package archive

import (
	"fmt"
	"mime"
	"path"
	"strings"
	"time"
)

const fallbackExtension = "dat"

// MediaFileName returns the original file name of an attachment, or media.<subtype> derived
// from the mime type when the attachment has no name.
func MediaFileName(mimeType, originalName string) string {
	if name := strings.TrimSpace(originalName); name != "" {
		return name
	}
	return "media." + extensionFromMime(mimeType)
}

func extensionFromMime(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		// Some clients send mime types with malformed parameters, the part before them is still usable.
		mediaType, _, _ = strings.Cut(mimeType, ";")
	}
	_, subtype, ok := strings.Cut(strings.TrimSpace(mediaType), "/")
	if !ok || subtype == "" {
		return fallbackExtension
	}
	return subtype
}

// SafeFileName strips any directory components from a file name so that it can't escape
// the media directory.
func SafeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	switch name {
	case "", ".", "..", "/":
		return "media." + fallbackExtension
	}
	return name
}

// FormatDuration formats d as HH:MM:SS. Hours are not wrapped at 24.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
