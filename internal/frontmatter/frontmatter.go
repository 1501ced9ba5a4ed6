// Package frontmatter separates YAML front matter from document bodies.
package frontmatter

import (
	"bytes"
	"fmt"

	"github.com/adrg/frontmatter"
)

// Split separates front matter (between leading --- delimiters) from the
// body. Content without front matter yields an empty map and the full body.
// Malformed front matter is an error; callers surface it with the source path.
func Split(data []byte) (map[string]interface{}, string, error) {
	var meta map[string]interface{}
	rest, err := frontmatter.Parse(bytes.NewReader(data), &meta)
	if err != nil {
		return nil, "", fmt.Errorf("frontmatter: %w", err)
	}
	if meta == nil {
		meta = map[string]interface{}{}
	}
	return meta, string(rest), nil
}
