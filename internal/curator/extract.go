package curator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/net/html"
)

const appIDAttr = "data-ds-appid"

// ParsePage decodes a filtered recommendations response body.
// total_count may arrive as a JSON number or as a numeric string; a missing
// value counts as zero.
func ParsePage(body []byte) (*Page, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", ErrParse)
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: response is not a JSON object", ErrParse)
	}

	total, err := parseTotalCount(doc.Get("total_count"))
	if err != nil {
		return nil, err
	}

	return &Page{
		AppIDs:     ExtractAppIDs(doc.Get("results_html").String()),
		TotalCount: total,
	}, nil
}

func parseTotalCount(v gjson.Result) (int, error) {
	switch v.Type {
	case gjson.Null:
		return 0, nil
	case gjson.Number:
		return int(v.Int()), nil
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(v.Str))
		if err != nil {
			return 0, fmt.Errorf("%w: total_count %q is not an integer", ErrParse, v.Str)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: unexpected total_count type %s", ErrParse, v.Type)
	}
}

// ExtractAppIDs returns the distinct numeric data-ds-appid attribute values
// found in an HTML fragment, in document order.
func ExtractAppIDs(fragment string) []string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	seen := make(map[string]struct{})
	var ids []string

	for {
		switch z.Next() {
		case html.ErrorToken:
			return ids
		case html.StartTagToken, html.SelfClosingTagToken:
			_, hasAttr := z.TagName()
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) != appIDAttr || !isDigits(val) {
					continue
				}
				id := string(val)
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
}

func isDigits(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
