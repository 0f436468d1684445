package repository

import "strings"

// TitleKey normalises a title for case-insensitive comparison. It is stored
// alongside the title so both backends compare the same Unicode folding
// instead of relying on SQL LOWER().
func TitleKey(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}
