package bot

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`^(https?://)?([a-zA-Z0-9-]+\.)+[a-zA-Z]{2,}(/.*)?$`)

// ExtractURLs reads one url per line. Blank lines are skipped; any other
// line that is not a url, or a file with no urls, yields ok=false.
func ExtractURLs(data []byte) (urls []string, ok bool) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 4096), maxAttachmentBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !urlPattern.MatchString(line) {
			return nil, false
		}
		urls = append(urls, line)
	}
	if scanner.Err() != nil || len(urls) == 0 {
		return nil, false
	}
	return urls, true
}
