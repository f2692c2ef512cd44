package conversation

import "strings"

// BulletPrefix marks a list item line in peer messages.
const BulletPrefix = "- "

// HasBullets reports whether the text contains at least one "- " list line.
func HasBullets(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, BulletPrefix) {
			return true
		}
	}
	return false
}

// RenderPlain renders a message body for a terminal. Lines starting with
// "- " become indented bullets; other lines are kept as they are.
func RenderPlain(text string) string {
	if !HasBullets(text) {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, BulletPrefix) {
			lines[i] = "  • " + line[len(BulletPrefix):]
		}
	}
	return strings.Join(lines, "\n")
}
