package chain

import "net/url"

// RedactURL strips credentials, query and path, which for hosted providers
// usually carries the project key.
func RedactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "<invalid url>"
	}

	if parsed.Path == "" || parsed.Path == "/" {
		return parsed.Scheme + "://" + parsed.Host
	}

	return parsed.Scheme + "://" + parsed.Host + "/***"
}
