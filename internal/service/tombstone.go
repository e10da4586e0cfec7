package service

import (
	"strings"
	"unicode/utf8"
)

// DeletedMessagePlaceholder prefixes the body of every tombstoned message.
const DeletedMessagePlaceholder = "[This message has been deleted]"

const tombstoneFiller = "."

// TombstoneBody returns the replacement body for a deleted message: the
// placeholder padded with filler up to the original length in characters,
// and never shorter than MinBodyLength.
func TombstoneBody(original string) string {
	want := max(utf8.RuneCountInString(original), MinBodyLength)
	have := utf8.RuneCountInString(DeletedMessagePlaceholder)
	if have >= want {
		return DeletedMessagePlaceholder
	}
	return DeletedMessagePlaceholder + strings.Repeat(tombstoneFiller, want-have)
}
