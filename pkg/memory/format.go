package memory

import "strings"

const promptHeader = "Relevant information about the user:"

// FormatMemoriesForPrompt renders records as bullets grouped under a heading
// per category. An empty list renders as "".
func FormatMemoriesForPrompt(records []Record) string {
	if len(records) == 0 {
		return ""
	}

	grouped := make(map[Category][]string)
	for _, r := range records {
		content := strings.TrimSpace(r.Content)
		if content == "" {
			continue
		}
		c := NormalizeCategory(string(r.Category))
		grouped[c] = append(grouped[c], content)
	}
	if len(grouped) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(promptHeader)
	for _, c := range Categories {
		items := grouped[c]
		if len(items) == 0 {
			continue
		}
		b.WriteString("\n\n## ")
		b.WriteString(c.Title())
		for _, item := range items {
			b.WriteString("\n- ")
			b.WriteString(item)
		}
	}
	return b.String()
}
