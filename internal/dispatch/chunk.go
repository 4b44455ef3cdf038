// ABOUTME: Line-boundary chunking for content exceeding the platform limit
// ABOUTME: Single lines longer than the limit are hard-split as a last resort

package dispatch

import "strings"

// SplitChunks splits content into ordered chunks of at most limit bytes,
// breaking at line boundaries. Content within the limit returns one chunk;
// empty content returns a single empty chunk so every request still yields
// exactly one Response.
func SplitChunks(content string, limit int) []string {
	if limit <= 0 || len(content) <= limit {
		return []string{content}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, line := range strings.Split(content, "\n") {
		// A single oversized line cannot break at a boundary; hard-split it.
		for len(line) > limit {
			flush()
			chunks = append(chunks, line[:limit])
			line = line[limit:]
		}

		need := len(line)
		if current.Len() > 0 {
			need++ // the joining newline
		}
		if current.Len()+need > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	flush()

	if len(chunks) == 0 {
		return []string{""}
	}
	return chunks
}
